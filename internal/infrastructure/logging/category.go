package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	IO              Category = "IO"
	Internal        Category = "Internal"
	Redis           Category = "Redis"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
	WebSocket       Category = "WebSocket"
	Store           Category = "Store"
	Client          Category = "Client"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// WebSocket
	Connect    SubCategory = "Connect"
	Disconnect SubCategory = "Disconnect"
	Broadcast  SubCategory = "Broadcast"
	Protocol   SubCategory = "Protocol"
	Purge      SubCategory = "Purge"

	// Store
	Expiry   SubCategory = "Expiry"
	Sweep    SubCategory = "Sweep"
	Eviction SubCategory = "Eviction"

	// Client
	Reconnect SubCategory = "Reconnect"
	Decrypt   SubCategory = "Decrypt"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	ErrorMessage ExtraKey = "ErrorMessage"
	SessionID    ExtraKey = "SessionId"
	RoomID       ExtraKey = "RoomId"
	MessageID    ExtraKey = "MessageId"
	FrameType    ExtraKey = "FrameType"
	Reason       ExtraKey = "Reason"
	Count        ExtraKey = "Count"
	Attempt      ExtraKey = "Attempt"
)
