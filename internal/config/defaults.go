package config

const (
	defaultConfigPath            = "~/.config/reeler/config.toml"
	defaultDownloadsDir          = "~/Videos/reeler"
	defaultStateDir              = "~/.local/share/reeler"
	defaultStoreFile             = "videos.json"
	defaultHistoryFile           = "history.db"
	defaultLockPollMs            = 250
	defaultSaveRetryMs           = 1000
	defaultGalleryPath           = "/videos/list/new/"
	defaultSegmentPattern        = `\d+\.ts(\?|$)`
	defaultPageTimeout           = 60
	defaultVideoPartTimeout      = 30
	defaultSegmentTimeout        = 4
	defaultNullRetryBudget       = 5
	defaultNullRetryDelayMs      = 1000
	defaultScanAhead             = 3
	defaultConnectivityPoll      = 2
	defaultMinFreeGiB            = 5
	defaultEncoder               = EncoderFFmpeg
	defaultDropPolicy            = DropPolicyDelete
	defaultConverterPollInterval = 60
	defaultConverterHeartbeat    = 30
	defaultServiceBind           = "0.0.0.0:5335"
	defaultStaleAfterHours       = 12
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	envPortalUsername            = "REELER_PORTAL_USERNAME"
	envPortalPassword            = "REELER_PORTAL_PASSWORD"
	envServiceURL                = "REELER_SERVICE_URL"
)

// Encoder backends.
const (
	EncoderFFmpeg = "ffmpeg"
	EncoderDrapto = "drapto"
)

// Drop policies applied to the original artifact after a successful conversion.
const (
	DropPolicyDelete = "delete"
	DropPolicyMove   = "move"
	DropPolicyRename = "rename"
	DropPolicyKeep   = "keep"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadsDir: defaultDownloadsDir,
			StateDir:     defaultStateDir,
		},
		Store: Store{
			LockPollMs:  defaultLockPollMs,
			SaveRetryMs: defaultSaveRetryMs,
		},
		Portal: Portal{
			GalleryPath:    defaultGalleryPath,
			Headless:       true,
			SegmentPattern: defaultSegmentPattern,
			PageTimeout:    defaultPageTimeout,
		},
		Download: Download{
			VideoPartTimeout: defaultVideoPartTimeout,
			SegmentTimeout:   defaultSegmentTimeout,
			NullRetryBudget:  defaultNullRetryBudget,
			NullRetryDelayMs: defaultNullRetryDelayMs,
			ScanAhead:        defaultScanAhead,
			ConnectivityPoll: defaultConnectivityPoll,
			MinFreeGiB:       defaultMinFreeGiB,
		},
		Converter: Converter{
			Encoder:           defaultEncoder,
			DropPolicy:        defaultDropPolicy,
			PollInterval:      defaultConverterPollInterval,
			HeartbeatInterval: defaultConverterHeartbeat,
		},
		Service: Service{
			Bind:            defaultServiceBind,
			StaleAfterHours: defaultStaleAfterHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
