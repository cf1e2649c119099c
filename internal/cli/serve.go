package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agusx1211/amux/internal/connsrv"
	"github.com/agusx1211/amux/internal/debug"
	"github.com/agusx1211/amux/internal/project"
	"github.com/agusx1211/amux/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve [project-dir...]",
	Short: "Start the orchestrator and connector endpoint",
	Long: `Start the connector WebSocket endpoint and open the given project
directories, spawning one worker per project. With no arguments the current
directory is opened.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from settings)")
	serveCmd.Flags().Bool("no-worker", false, "Open projects without spawning workers")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := store.New("")
	if err != nil {
		return err
	}
	settings, err := st.GetSettings()
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = settings.ServerAddr
	}
	noWorker, _ := cmd.Flags().GetBool("no-worker")

	mgr := connsrv.NewManager(st, nil)
	srv := connsrv.New(mgr, addr)
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Printf("%s connector endpoint at %s\n", paint(styleBoldCyan, "amux"), srv.URL())

	dirs := args
	if len(dirs) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		dirs = []string{cwd}
	}

	for _, dir := range dirs {
		p, err := mgr.Open(dir)
		if err != nil {
			return err
		}
		go printEvents(p)
		if noWorker {
			fmt.Printf("  opened %s\n", p.BaseDir())
			continue
		}
		if err := p.StartWorker(srv.URL()); err != nil {
			return fmt.Errorf("starting worker for %s: %w", p.BaseDir(), err)
		}
		fmt.Printf("  worker started for %s\n", p.BaseDir())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nshutting down...")
	if err := mgr.CloseAll(); err != nil {
		debug.LogKV("cli", "project shutdown error", "err", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// printEvents renders a project's event stream to stdout until the channel
// owner shuts down.
func printEvents(p *project.Project) {
	for ev := range p.Events() {
		switch e := ev.(type) {
		case project.UserMessageEvent:
			fmt.Printf("%s %s\n", paint(styleBoldWhite, ">"), e.Content)
		case project.ResponseCompletedEvent:
			if e.Content != "" {
				fmt.Println(e.Content)
			}
			if e.CommitMsg != "" {
				fmt.Printf("%s %s\n", paint(colorGreen, "commit:"), e.CommitMsg)
			}
		case project.QuestionEvent:
			fmt.Printf("%s %s [y/n/a/d]\n", paint(colorYellow, "?"), e.Question.Text)
		case project.CommandOutputEvent:
			if e.Output != "" {
				fmt.Printf("%s %s\n", paint(colorDim, e.Command+":"), e.Output)
			}
		case project.CostInfoEvent:
			fmt.Printf("%s worker $%.4f agent $%.4f\n", paint(colorDim, "cost:"), e.WorkerTotal, e.AgentTotal)
		case project.LogEvent:
			if e.Level == "error" {
				fmt.Fprintf(os.Stderr, "%s %s\n", paint(colorRed, "error:"), e.Message)
			}
		}
	}
}
