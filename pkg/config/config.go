package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	WaitForServices    string  // duration to wait for other services to be ready
	LogLevel           string  // sets the log level (zap log level values)
	LogFormat          string  // text vs json
	LogFilter          string  // zapfilter rules, e.g. "*:engine* warn+:*"
	EnableTelemetry    bool    // enable telemetry
	TelemetryEndpoint  string  // endpoint for telemetry
	TelemetryExporter  string  // grpc or stdout
	ProfilingPort      int     // port for profiling
	SessionURL         string  // base URL of the session service
	SessionFile        string  // session fixture (yaml or json), used instead of SessionURL
	SessionCacheTTL    string  // how long loaded sessions are kept in memory
	AnalysisURL        string  // base URL of the analysis service
	AnalysisMinVersion string  // minimum version the analysis service must report
	AnalysisTimeout    string  // timeout for a single analysis request
	NatsURL            string  // NATS server, frames are published if set
	NatsSubjectPrefix  string  // subject prefix for published frames
	ServerAddr         string  // listen addr of the control surface
	AssetsHost         string  // where the debug charts load echarts from
	FrameRate          int     // frames per second requested from the scheduler
	SpeedFactor        float64 // playback speed multiplier
	SamplePeriod       string  // real time between two telemetry samples
	StartOffset        float64 // initial buffer index
	Timesteps          int     // window length of the analysis model
	Sector3Margin      float64 // distance before track end that completes sector 3
	NeutralColor       string  // color of sectors not yet reached
	ThrottleBias       float64 // added to throttle by the throttle drift attack
	GpsOffset          float64 // added to X and Y by the gps spoof attack
)
