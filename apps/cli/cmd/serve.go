package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/contractspec/packages/fakeapi"
	"github.com/spf13/cobra"
)

var (
	servePortFlag    int
	serveDelayFlag   string
	servePostsFlag   int
	serveVerboseFlag bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an in-memory fake of the posts and auth API",
	Long: `Start an HTTP server that behaves like the API the built-in contract
targets: a seeded /posts collection, /register and /login issuing bearer
tokens, and guarded routes such as /664/posts.

All state lives in memory and is lost on exit.

Examples:
  contractspec serve
  contractspec serve --port 4000 --delay 50ms
  contractspec serve --posts 10 --verbose`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().IntVarP(&servePortFlag, "port", "p", 3000, "Port to listen on")
	serveCmd.Flags().StringVarP(&serveDelayFlag, "delay", "d", "0", "Delay to add to all responses (e.g., 100ms, 1s)")
	serveCmd.Flags().IntVar(&servePostsFlag, "posts", fakeapi.DefaultPosts, "Number of posts to seed")
	serveCmd.Flags().BoolVarP(&serveVerboseFlag, "verbose", "v", false, "Log every request")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	// Parse delay
	var delay time.Duration
	if serveDelayFlag != "0" {
		var err error
		delay, err = time.ParseDuration(serveDelayFlag)
		if err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("invalid delay value %q: %w", serveDelayFlag, err))
		}
	}

	server := fakeapi.NewServer(
		fakeapi.WithPort(servePortFlag),
		fakeapi.WithDelay(delay),
		fakeapi.WithPosts(servePostsFlag),
		fakeapi.WithVerbose(serveVerboseFlag),
	)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		fmt.Fprintln(cmd.ErrOrStderr(), "\nShutting down fake API...")
	}()

	return server.StartWithContext(ctx)
}
