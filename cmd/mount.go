package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/clrmeta/internal/graph"
	"github.com/agentic-research/clrmeta/internal/member"
	"github.com/agentic-research/clrmeta/internal/nfsmount"
)

var (
	mountImage     imageFlags
	mountServeOnly bool
)

func init() {
	mountCmd.Flags().StringVar(&mountImage.image, "image", "", "Mapped image used to show unmanaged exports")
	mountCmd.Flags().StringVar(&mountImage.layout, "layout", "", "JSON export and vtable fixup layout of --image")
	mountCmd.Flags().BoolVar(&mountServeOnly, "serve-only", false, "Run the NFS server without mounting it")
	rootCmd.AddCommand(mountCmd)
}

var mountCmd = &cobra.Command{
	Use:   "mount [snapshot] [mountpoint]",
	Short: "Serve the metadata graph as a read-only NFS tree and mount it",
	Args: func(cmd *cobra.Command, args []string) error {
		if mountServeOnly {
			return cobra.ExactArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		m, _, err := openModule(args[0])
		if err != nil {
			return err
		}
		r, closeImage, err := mountImage.open()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeImage(); err == nil {
				err = cerr
			}
		}()

		opts := []graph.Option{graph.WithLogger(logger), graph.WithCacheSize(cfg.Graph.CacheSize)}
		if r != nil {
			opts = append(opts, graph.WithExports(r))
		}
		live := graph.NewHotSwapGraph(graph.NewProjection(m, opts...))
		fs := nfsmount.NewGraphFS(live, manifest(args[0], m))

		srv, err := nfsmount.Listen(cfg.NFS.Listen, fs)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()

		w := cmd.OutOrStdout()
		bold := color.New(color.Bold)
		bold.Fprintf(w, "NFS server for %s on port %d\n", m.Name(), srv.Port())

		mountPoint := ""
		if !mountServeOnly {
			mountPoint = args[1]
			if err := os.MkdirAll(mountPoint, 0o755); err != nil {
				return errors.Wrap(err, "create mountpoint")
			}
			if err := nfsmount.Mount(srv.Port(), mountPoint, cfg.NFS.MountOptionsReadonly); err != nil {
				return err
			}
			fmt.Fprintf(w, "Mounted at %s. Press Ctrl+C to unmount.\n", mountPoint)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

	wait:
		for {
			select {
			case <-ctx.Done():
				break wait
			case <-hup:
				// SIGHUP reopens the snapshot, e.g. after a rebuild
				next, _, err := openModule(args[0])
				if err != nil {
					logger.Error("reload failed", zap.String("snapshot", args[0]), zap.Error(err))
					continue
				}
				live.Swap(graph.NewProjection(next, opts...))
				m = next
				logger.Info("snapshot reloaded", zap.String("module", next.Name()))
			}
		}

		if mountPoint != "" {
			fmt.Fprintln(w, "Unmounting...")
			if err := nfsmount.Unmount(mountPoint); err != nil {
				logger.Warn("unmount failed", zap.String("mountpoint", mountPoint), zap.Error(err))
			}
		}
		return m.Err()
	},
}

// manifest describes the mounted module at the tree root.
func manifest(source string, m *member.Module) map[string]any {
	doc := map[string]any{
		"source":     source,
		"module":     m.Name(),
		"mvid":       m.Mvid().String(),
		"generation": int64(m.Generation()),
		"types":      int64(len(m.AllTypes())),
		"references": int64(len(m.AssemblyReferences())),
	}
	if a, ok := m.Assembly(); ok {
		doc["assembly"] = a.FullName()
	}
	return doc
}
