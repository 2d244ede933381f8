package config

const (
	defaultWorkDir                = "~/.local/share/scriptreel"
	defaultOutputDir              = "~/.local/share/scriptreel/clips"
	defaultLogDir                 = "~/.local/share/scriptreel/logs"
	defaultGenerationBaseURL      = "http://127.0.0.1:8700/v1"
	defaultGenerationModel        = "reel-video"
	defaultGenerationVersion      = "1"
	defaultGenerationTimeout      = 120
	defaultGenerationRPS          = 2.0
	defaultEnhancementBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultEnhancementModel       = "google/gemini-3-flash-preview"
	defaultEnhancementReferer     = "https://github.com/scriptreel/scriptreel"
	defaultEnhancementTitle       = "scriptreel prompt enhancer"
	defaultEnhancementTimeout     = 60
	defaultStrategy               = "hybrid"
	defaultMaxSegments            = 20
	defaultMinSegmentLength       = 10
	defaultMaxSegmentLength       = 500
	defaultMaxTokensPerSegment    = 200
	defaultWordsPerChunk          = 8
	defaultCharsPerToken          = 4.0
	defaultSecondsPerWord         = 0.375
	defaultMinClipSeconds         = 2.0
	defaultMaxClipSeconds         = 10.0
	defaultConcurrency            = 2
	defaultMaxAttempts            = 4
	defaultRetryBaseDelayMS       = 1000
	defaultRetryMaxDelayMS        = 30000
	defaultPollInitialMS          = 2000
	defaultPollMaxMS              = 10000
	defaultPollCeilingSeconds     = 45
	defaultSamplePosition         = 0.9
	defaultMaxSeedBytes           = 400 * 1024
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultContinuityNote         = "this scene continues from the previous clip; maintain visual consistency"
	defaultCacheBackend           = "sqlite"
	defaultRedisPrefix            = "scriptreel:cache:"
	defaultCreditsPerSecond       = 1.0
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultContinuityMultiplier   = 1.1
	defaultEnhancementMultiplier  = 1.05
	defaultCreditsInitialBalance  = 500.0
	defaultCacheFileName          = "cache.db"
	defaultEnhancementCostFeature = "enhance"
	defaultContinuityCostFeature  = "continuity"
	defaultTelemetryExporter      = "http"
	defaultTelemetryEndpoint      = "localhost:4318"
	defaultTelemetryServiceName   = "scriptreel"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			CacheDir:  defaultCacheDir(),
		},
		Generation: Generation{
			BaseURL:           defaultGenerationBaseURL,
			Model:             defaultGenerationModel,
			ModelVersion:      defaultGenerationVersion,
			TimeoutSeconds:    defaultGenerationTimeout,
			RequestsPerSecond: defaultGenerationRPS,
			AllowedDurations:  []float64{5, 10},
		},
		Enhancement: Enhancement{
			BaseURL:        defaultEnhancementBaseURL,
			Model:          defaultEnhancementModel,
			Referer:        defaultEnhancementReferer,
			Title:          defaultEnhancementTitle,
			TimeoutSeconds: defaultEnhancementTimeout,
		},
		Segmentation: Segmentation{
			Strategy:            defaultStrategy,
			MaxSegments:         defaultMaxSegments,
			MinSegmentLength:    defaultMinSegmentLength,
			MaxSegmentLength:    defaultMaxSegmentLength,
			MaxTokensPerSegment: defaultMaxTokensPerSegment,
			EnforceTokenLimits:  true,
			WordsPerChunk:       defaultWordsPerChunk,
			CharsPerToken:       defaultCharsPerToken,
			SecondsPerWord:      defaultSecondsPerWord,
			MinClipSeconds:      defaultMinClipSeconds,
			MaxClipSeconds:      defaultMaxClipSeconds,
		},
		Orchestrator: Orchestrator{
			Concurrency:        defaultConcurrency,
			MaxAttempts:        defaultMaxAttempts,
			RetryBaseDelayMS:   defaultRetryBaseDelayMS,
			RetryMaxDelayMS:    defaultRetryMaxDelayMS,
			PollInitialMS:      defaultPollInitialMS,
			PollMaxMS:          defaultPollMaxMS,
			PollCeilingSeconds: defaultPollCeilingSeconds,
		},
		Continuity: Continuity{
			Enabled:        true,
			SamplePosition: defaultSamplePosition,
			MaxSeedBytes:   defaultMaxSeedBytes,
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			Note:           defaultContinuityNote,
		},
		Cache: Cache{
			Backend:     defaultCacheBackend,
			RedisPrefix: defaultRedisPrefix,
		},
		Credits: Credits{
			InitialBalance:   defaultCreditsInitialBalance,
			CreditsPerSecond: defaultCreditsPerSecond,
			FeatureMultipliers: map[string]float64{
				defaultContinuityCostFeature:  defaultContinuityMultiplier,
				defaultEnhancementCostFeature: defaultEnhancementMultiplier,
			},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Batch:          true,
			Errors:         true,
		},
		Telemetry: Telemetry{
			Exporter:     defaultTelemetryExporter,
			Endpoint:     defaultTelemetryEndpoint,
			SamplingRate: 1.0,
			ServiceName:  defaultTelemetryServiceName,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
