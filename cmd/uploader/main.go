package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mdshare/internal/domain"
	"mdshare/internal/logger"
	"mdshare/internal/preview"
	"mdshare/internal/uploader"
)

var (
	rootCmd = &cobra.Command{
		Use:           "mdshare",
		Short:         "Upload images and print markdown links",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	uploadCmd = &cobra.Command{
		Use:   "upload [files or globs...]",
		Short: "Upload files; \"-\" reads one file from stdin",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cmdUpload,
	}

	listCmd = &cobra.Command{
		Use:   "ls",
		Short: "List uploaded files",
		RunE:  cmdList,
	}

	removeCmd = &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an upload record and release its quota",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdRemove,
	}

	quotaCmd = &cobra.Command{
		Use:   "quota",
		Short: "Show storage usage",
		RunE:  cmdQuota,
	}
)

func main() {
	flags := rootCmd.PersistentFlags()
	flags.String("server", "http://localhost:2525", "ingestion server base URL")
	flags.String("token", "", "bearer token identifying the uploader")
	flags.Bool("verbose", false, "log each step")

	uf := uploadCmd.Flags()
	uf.String("transport", "cos", "object store protocol: cos or s3")
	uf.String("endpoint", "", "object store endpoint override")
	uf.Bool("insecure", false, "use plain http for the s3 transport")
	uf.String("domain", "", "public domain used in links")
	uf.String("post-id", "", "attach uploads to a post")
	uf.Int64("max-size", uploader.DefaultMaxSize, "largest accepted file in bytes")
	uf.Duration("timeout", uploader.DefaultUploadTimeout, "per-file upload timeout")
	uf.String("name", "stdin", "file name used for stdin input")
	uf.String("type", "", "MIME type override")

	for _, fs := range []*pflag.FlagSet{flags, uf} {
		if err := viper.BindPFlags(fs); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	viper.SetEnvPrefix("MDSHARE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(uploadCmd, listCmd, removeCmd, quotaCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case domain.ValidationError.Has(err):
		return 2
	case domain.QuotaExceededError.Has(err):
		return 3
	case domain.ConfigError.Has(err):
		return 4
	default:
		return 1
	}
}

func newLogger() *zap.Logger {
	if !viper.GetBool("verbose") {
		return zap.NewNop()
	}
	log, err := logger.New("development")
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func apiClient() *uploader.APIClient {
	return uploader.NewAPIClient(viper.GetString("server"), viper.GetString("token"), nil)
}

func cmdUpload(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	files, err := collectFiles(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	client := apiClient()

	var transport uploader.Transport
	switch viper.GetString("transport") {
	case "cos":
		transport = uploader.NewCOSTransport(nil, viper.GetString("endpoint"), viper.GetString("domain"))
	case "s3":
		endpoint := viper.GetString("endpoint")
		if endpoint == "" {
			return domain.ConfigError.New("the s3 transport needs --endpoint")
		}
		transport = uploader.NewMinioTransport(endpoint, !viper.GetBool("insecure"))
	default:
		return domain.ConfigError.New("unknown transport %q", viper.GetString("transport"))
	}

	orchestrator := uploader.NewOrchestrator(
		uploader.NewCredentialCache(client, uploader.DefaultRefreshMargin),
		transport,
		client,
		uploader.Options{
			MaxSize:       viper.GetInt64("max-size"),
			UploadTimeout: viper.GetDuration("timeout"),
			Domain:        viper.GetString("domain"),
			Prober:        preview.ProbeFile,
			OnProgress: func(name string, percent int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\r%s %3d%%", name, percent)
				if percent == 100 {
					fmt.Fprintln(cmd.ErrOrStderr())
				}
			},
		},
		log,
	)

	var postID *string
	if id := viper.GetString("post-id"); id != "" {
		postID = &id
	}

	results, err := orchestrator.UploadMany(cmd.Context(), files, postID)
	for _, res := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "![%s](%s)\n", res.Asset.OriginalName, res.URLs.Compressed)
	}
	return err
}

// collectFiles expands globs and reads every named file. "-" reads stdin.
func collectFiles(args []string, stdin io.Reader) ([]uploader.File, error) {
	var files []uploader.File
	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, domain.ValidationError.Wrap(err)
			}
			name := viper.GetString("name")
			files = append(files, uploader.File{Name: name, MIMEType: detectType(name, data), Data: data})
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, domain.ValidationError.New("bad pattern %q: %v", arg, err)
		}
		if len(matches) == 0 {
			return nil, domain.ValidationError.New("no files match %q", arg)
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, domain.ValidationError.Wrap(err)
			}
			name := filepath.Base(path)
			files = append(files, uploader.File{Name: name, MIMEType: detectType(name, data), Data: data})
		}
	}
	return files, nil
}

func detectType(name string, data []byte) string {
	if t := viper.GetString("type"); t != "" {
		return t
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		mediaType, _, err := mime.ParseMediaType(t)
		if err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}

func cmdList(cmd *cobra.Command, _ []string) error {
	files, err := apiClient().List(cmd.Context())
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\t%s\t%s\n",
			f.ID, f.CreatedAt.Format(time.RFC3339), f.SizeBytes, f.OriginalName, f.URLs.Original)
	}
	return nil
}

func cmdRemove(cmd *cobra.Command, args []string) error {
	if err := apiClient().Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
	return nil
}

func cmdQuota(cmd *cobra.Command, _ []string) error {
	info, err := apiClient().Quota(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "used %d of %d bytes (%.1f%%), %d available\n",
		info.UsedSpace, info.TotalSpace, info.UsagePercent, info.AvailableSpace)
	return nil
}
