package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascadewire/chunkupload/internal/config"
)

// flagOverrides holds the command-line flag values that, when set,
// override whatever config.Load produced. Cobra's Changed() check on
// each flag (see applyOverrides) is what lets an unset flag fall back
// to the config file or its built-in default instead of stomping it
// with a zero value.
type flagOverrides struct {
	configPath string
	saveConfig bool

	endpoint      string
	checkEndpoint string
	mergeEndpoint string

	chunkSize   int64
	concurrency int
	retries     int
	hashAlgo    string
	transport   string

	maxFileSize       int64
	minFileSize       int64
	allowFileTypes    []string
	disallowFileTypes []string
	allowEmptyFiles   bool

	enablePrecheck bool
	persistQueue   bool
	storageType    string
	stateDir       string

	logLevel  string
	logEvents bool

	endpointToken string
	tokenFile     string

	s3Bucket          string
	s3Region          string
	s3Endpoint        string
	s3AccessKeyID     string
	s3SecretAccessKey string
	s3SessionToken    string

	azureServiceURL  string
	azureContainer   string
	azureAccountName string
	azureAccountKey  string

	proxyMode     string
	proxyHost     string
	proxyPort     int
	proxyUser     string
	proxyPassword string
	proxyNoProxy  string
}

var flags flagOverrides

// Execute builds and runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "chunkupload [flags] FILE [FILE...]",
		Short:   "Resumable chunked file uploader",
		Version: Version,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			token := config.ResolveEndpointToken(flags.endpointToken, flags.tokenFile)
			if token == "" {
				token, err = promptForToken(cmd)
				if err != nil {
					return err
				}
			}
			if flags.saveConfig {
				path := flags.configPath
				if path == "" {
					if path, err = config.DefaultConfigPath(); err != nil {
						return err
					}
				}
				if err := config.Save(cfg, path); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
			}
			return runUpload(cmd, cfg, token, args)
		},
	}

	fl := root.Flags()
	fl.StringVar(&flags.configPath, "config", "", "path to a JSON config file (default: "+"~/.config/chunkupload/config.json"+")")
	fl.BoolVar(&flags.saveConfig, "save-config", false, "persist the resolved configuration back to --config")

	fl.StringVar(&flags.endpoint, "endpoint", "", "chunk upload endpoint URL")
	fl.StringVar(&flags.checkEndpoint, "check-endpoint", "", "precheck endpoint URL")
	fl.StringVar(&flags.mergeEndpoint, "merge-endpoint", "", "merge endpoint URL")

	fl.Int64Var(&flags.chunkSize, "chunk-size", 0, "chunk size in bytes (0 = auto)")
	fl.IntVar(&flags.concurrency, "concurrency", 0, "max concurrent chunk uploads (0 = auto)")
	fl.IntVar(&flags.retries, "retries", 0, "default per-chunk retry ceiling")
	fl.StringVar(&flags.hashAlgo, "hash-algorithm", "", "fingerprint algorithm: md5, sha1, or sha256")
	fl.StringVar(&flags.transport, "transport", "", "upload backend: http, s3, or azure")

	fl.Int64Var(&flags.maxFileSize, "max-file-size", 0, "reject files larger than this many bytes (0 = unbounded)")
	fl.Int64Var(&flags.minFileSize, "min-file-size", 0, "reject files smaller than this many bytes")
	fl.StringSliceVar(&flags.allowFileTypes, "allow-file-type", nil, "MIME pattern to allow, repeatable (e.g. image/*)")
	fl.StringSliceVar(&flags.disallowFileTypes, "disallow-file-type", nil, "MIME pattern to deny, repeatable")
	fl.BoolVar(&flags.allowEmptyFiles, "allow-empty-files", false, "allow zero-byte files to upload as a single empty request")

	fl.BoolVar(&flags.enablePrecheck, "enable-precheck", false, "skip re-uploading files the server already has")
	fl.BoolVar(&flags.persistQueue, "persist-queue", false, "persist resumable state to --state-dir instead of memory only (requires --storage-type file)")
	fl.StringVar(&flags.storageType, "storage-type", "", "resumable state store: memory or file")
	fl.StringVar(&flags.stateDir, "state-dir", "", "directory for file-backed resumable state")

	fl.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn, or error")
	fl.BoolVar(&flags.logEvents, "log-events", false, "log uploader pipeline events (progress, chunk, error, cancel, completion) at debug level")

	fl.StringVar(&flags.endpointToken, "endpoint-token", "", "bearer token for the upload endpoint")
	fl.StringVar(&flags.tokenFile, "token-file", "", "path to a file containing the bearer token")

	fl.StringVar(&flags.s3Bucket, "s3-bucket", "", "S3 bucket (transport=s3)")
	fl.StringVar(&flags.s3Region, "s3-region", "", "S3 region (transport=s3)")
	fl.StringVar(&flags.s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint override (transport=s3)")
	fl.StringVar(&flags.s3AccessKeyID, "s3-access-key-id", "", "S3 access key id (transport=s3)")
	fl.StringVar(&flags.s3SecretAccessKey, "s3-secret-access-key", "", "S3 secret access key (transport=s3)")
	fl.StringVar(&flags.s3SessionToken, "s3-session-token", "", "S3 session token (transport=s3)")

	fl.StringVar(&flags.azureServiceURL, "azure-service-url", "", "Azure blob service URL (transport=azure)")
	fl.StringVar(&flags.azureContainer, "azure-container", "", "Azure container name (transport=azure)")
	fl.StringVar(&flags.azureAccountName, "azure-account-name", "", "Azure storage account name (transport=azure)")
	fl.StringVar(&flags.azureAccountKey, "azure-account-key", "", "Azure storage account key (transport=azure)")

	fl.StringVar(&flags.proxyMode, "proxy-mode", "", "proxy mode: no-proxy, system, basic, or ntlm")
	fl.StringVar(&flags.proxyHost, "proxy-host", "", "proxy host (basic/ntlm modes)")
	fl.IntVar(&flags.proxyPort, "proxy-port", 0, "proxy port (basic/ntlm modes, default 8080)")
	fl.StringVar(&flags.proxyUser, "proxy-user", "", "proxy username (basic/ntlm modes)")
	fl.StringVar(&flags.proxyPassword, "proxy-password", "", "proxy password (basic/ntlm modes)")
	fl.StringVar(&flags.proxyNoProxy, "proxy-no-proxy", "", "comma-separated proxy bypass list")

	return root
}

// resolveConfig loads --config (or the default path, if present) and
// overlays any flags the user actually set.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err == nil {
			path = defaultPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("endpoint") {
		cfg.Endpoint = flags.endpoint
	}
	if changed("check-endpoint") {
		cfg.CheckEndpoint = flags.checkEndpoint
	}
	if changed("merge-endpoint") {
		cfg.MergeEndpoint = flags.mergeEndpoint
	}
	if changed("chunk-size") {
		cfg.ChunkSize = flags.chunkSize
	}
	if changed("concurrency") {
		cfg.Concurrency = flags.concurrency
	}
	if changed("retries") {
		cfg.Retries = flags.retries
	}
	if changed("hash-algorithm") {
		cfg.HashAlgorithm = flags.hashAlgo
	}
	if changed("transport") {
		cfg.Transport = flags.transport
	}
	if changed("max-file-size") {
		cfg.MaxFileSize = flags.maxFileSize
	}
	if changed("min-file-size") {
		cfg.MinFileSize = flags.minFileSize
	}
	if changed("allow-file-type") {
		cfg.AllowFileTypes = flags.allowFileTypes
	}
	if changed("disallow-file-type") {
		cfg.DisallowFileTypes = flags.disallowFileTypes
	}
	if changed("allow-empty-files") {
		cfg.AllowEmptyFiles = flags.allowEmptyFiles
	}
	if changed("enable-precheck") {
		cfg.EnablePrecheck = flags.enablePrecheck
	}
	if changed("persist-queue") {
		cfg.PersistQueue = flags.persistQueue
	}
	if changed("storage-type") {
		cfg.StorageType = flags.storageType
	}
	if changed("state-dir") {
		cfg.StateDir = flags.stateDir
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("log-events") {
		cfg.LogEvents = flags.logEvents
	}
}
