package cli

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/queue"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <identity> [image]",
	Short: "Verify a face against one enrolled identity",
	Long: `Verify a face against the record of one identity and print MATCH, NO_MATCH
or UNDETERMINED with the distance. Without an image argument a still is
captured from the configured camera.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMatch(cmd, args[1:], func(ctx context.Context, a *app, img image.Image) (*models.Outcome, error) {
			return a.svc.Verify(ctx, a.session, args[0], img)
		})
	},
}

var identifyCmd = &cobra.Command{
	Use:   "identify [image]",
	Short: "Find the enrolled identity nearest to a face",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMatch(cmd, args, func(ctx context.Context, a *app, img image.Image) (*models.Outcome, error) {
			return a.svc.Identify(ctx, a.session, img)
		})
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture <output.jpg>",
	Short: "Save a still from the configured camera",
	Args:  cobra.ExactArgs(1),
	RunE:  runCapture,
}

var triggerCmd = &cobra.Command{
	Use:   "trigger <station> <verify|identify> [identity]",
	Short: "Ask a remote station to capture and verify",
	Long: `Send a command to a station over NATS. The station captures a still and
queues it for the workers; the outcome is published on the events stream.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runTrigger,
}

func init() {
	rootCmd.AddCommand(verifyCmd, identifyCmd, captureCmd, triggerCmd)
	captureCmd.Flags().Int("width", 0, "Downscale to this width (0 keeps the camera size)")
	captureCmd.Flags().Int("quality", 90, "JPEG quality")
	verifyCmd.Flags().Bool("strict-exit", false, "Exit non-zero unless the decision is MATCH")
	identifyCmd.Flags().Bool("strict-exit", false, "Exit non-zero unless the decision is MATCH")
}

type matchFunc func(ctx context.Context, a *app, img image.Image) (*models.Outcome, error)

func runMatch(cmd *cobra.Command, imageArgs []string, match matchFunc) error {
	var imagePath string
	if len(imageArgs) > 0 {
		imagePath = imageArgs[0]
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	img, err := a.loadImage(ctx, imagePath)
	if err != nil {
		return err
	}
	out, err := match(ctx, a, img)
	if err != nil {
		return err
	}
	if err := printOutcome(cmd.OutOrStdout(), out, a.svc.Threshold()); err != nil {
		return err
	}
	if mustGetBool(cmd, "strict-exit") && out.Result.Decision != biometric.Match {
		return fmt.Errorf("decision %s", out.Result.Decision)
	}
	return nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	cam := capture.NewCamera(cfg.Camera)
	src, err := cam.Start(ctx)
	if err != nil {
		return err
	}
	defer cam.Stop()

	img, err := capture.Still(ctx, src, capture.StillOptions{
		TargetWidth:  mustGetInt(cmd, "width"),
		ReadyTimeout: cfg.Matching.ReadyTimeout,
	})
	if err != nil {
		return err
	}
	data, err := capture.EncodeJPEG(img, mustGetInt(cmd, "quality"))
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", args[0], err)
	}
	b := img.Bounds()
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %dx%d still to %s\n", b.Dx(), b.Dy(), args[0])
	return nil
}

// parseStationCommand builds the command sent to a station.
func parseStationCommand(args []string) (models.StationCommand, error) {
	cmd := models.StationCommand{Kind: models.TaskKind(args[1])}
	if len(args) > 2 {
		cmd.Identity = args[2]
	}
	switch cmd.Kind {
	case models.TaskVerify:
		if cmd.Identity == "" {
			return cmd, fmt.Errorf("verify needs an identity")
		}
	case models.TaskIdentify:
		if cmd.Identity != "" {
			return cmd, fmt.Errorf("identify takes no identity")
		}
	default:
		return cmd, fmt.Errorf("unknown command %q, want verify or identify", args[1])
	}
	return cmd, nil
}

func runTrigger(cmd *cobra.Command, args []string) error {
	stationCmd, err := parseStationCommand(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.NATS.URL == "" {
		return fmt.Errorf("nats.url is not configured")
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer producer.Close()

	if err := producer.SendCommand(args[0], stationCmd); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to station %s\n", stationCmd.Kind, args[0])
	return nil
}
