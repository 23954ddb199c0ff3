// Command picar drives the car from the keyboard and optionally logs every
// camera frame with the steering angle and speed that produced it.
//
//	picar --image --speed 40 --angle 2 --serial /dev/ttyACM0 --camera /dev/video0
//
// Without --serial the simulated driver is used, and without --camera a
// synthetic pattern stands in for the camera.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/teranos/picar"
	"github.com/teranos/picar/camera"
	"github.com/teranos/picar/config"
	"github.com/teranos/picar/dataset"
	"github.com/teranos/picar/driver"
	"github.com/teranos/picar/operators"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "picar"
	app.Usage = "drive the car from the keyboard and record lane navigation data"
	app.Flags = flags()
	app.Action = run
	return app
}

func flags() []cli.Flag {
	def := config.Default()
	return []cli.Flag{
		cli.IntFlag{Name: "speed, s", Value: def.Drive.Speed, Usage: "drive speed, 0-100"},
		cli.IntFlag{Name: "angle, a", Value: def.Drive.SteerStep, Usage: "steering step per key press in degrees"},
		cli.BoolFlag{Name: "image, i", Usage: "save every frame with its steering angle and speed"},
		cli.StringFlag{Name: "config, c", Usage: "YAML configuration file"},
		cli.StringFlag{Name: "camera", Value: def.Camera.Source, Usage: `frame source: "pattern", "replay:<dir>" or a V4L2 device`},
		cli.IntFlag{Name: "frames", Usage: "end a pattern camera after this many frames"},
		cli.StringFlag{Name: "serial", Value: def.Serial.Port, Usage: `motor controller port, or "sim"`},
		cli.StringFlag{Name: "data-dir", Value: def.DataDir, Usage: "directory for saved samples"},
		cli.StringFlag{Name: "script", Usage: "play key events from a YAML script instead of the keyboard"},
		cli.BoolFlag{Name: "manifest", Usage: "index saved samples in a SQLite manifest"},
		cli.IntFlag{Name: "max-stumbles", Usage: "stop the run after this many recoverable failures, 0 for no limit"},
		cli.StringFlag{Name: "log-file", Value: def.Log.File, Usage: "log file, rotated"},
		cli.StringFlag{Name: "log-level", Value: def.Log.Level, Usage: "trace, debug, info, warn or error"},
	}
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("speed") {
		cfg.Drive.Speed = c.Int("speed")
	}
	if c.IsSet("angle") {
		cfg.Drive.SteerStep = c.Int("angle")
	}
	if c.Bool("image") {
		cfg.SaveImages = true
	}
	if c.IsSet("camera") {
		cfg.Camera.Source = c.String("camera")
	}
	if c.IsSet("frames") {
		cfg.Camera.Frames = c.Int("frames")
	}
	if c.IsSet("serial") {
		cfg.Serial.Port = c.String("serial")
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("script") {
		cfg.Script = c.String("script")
	}
	if c.Bool("manifest") {
		cfg.Manifest = true
	}
	if c.IsSet("max-stumbles") {
		cfg.MaxStumbles = c.Int("max-stumbles")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	interactive := cfg.Script == ""
	logger, closeLog := newLogger(cfg, interactive)
	defer closeLog()

	opts := picar.DefaultOptions()
	opts.Translator = cfg.Translator()
	opts.Calibration = cfg.CalibrationValue()
	opts.SaveImages = cfg.SaveImages
	opts.Policy = cfg.TripPolicy()
	opts.Logger = logger

	var dataDir string
	if cfg.SaveImages {
		writer, closeWriter, err := openDataset(cfg)
		if err != nil {
			return err
		}
		defer closeWriter()
		opts.Persister = writer
		dataDir = writer.Dir()
	}

	var console *operators.Console
	if interactive {
		keys, err := cfg.KeyBindings()
		if err != nil {
			return err
		}
		console = operators.NewConsole(
			operators.WithBindings(keys),
			operators.WithReleaseAfter(cfg.Console.ReleaseAfter),
		)
		opts.Input = console
		opts.Display = console
		if opts.Persister != nil {
			opts.Persister = countingPersister{Persister: opts.Persister, console: console}
		}
	} else {
		script, err := picar.LoadScript(cfg.Script)
		if err != nil {
			return err
		}
		defer script.Close()
		opts.Input = script
	}

	devices := picar.Devices{
		OpenActuator: func() (picar.Actuator, error) {
			return driver.Open(cfg.Serial.Port, cfg.Serial.Baud)
		},
		OpenCamera: func() (picar.Camera, error) {
			return camera.Open(cfg.Camera.Source, camera.Settings{
				Width:  cfg.Camera.Width,
				Height: cfg.Camera.Height,
				FPS:    cfg.Camera.FPS,
				Frames: cfg.Camera.Frames,
			})
		},
	}

	session, err := picar.NewSession(opts, devices)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if console != nil {
		if err := console.Start(); err != nil {
			return err
		}
	}
	rep, runErr := session.Run(ctx)
	if console != nil {
		if err := console.Close(); err != nil {
			logger.Warn("console exited with error", "error", err)
		}
	}

	fmt.Printf("session %s: %s after %s, %d frames, %d samples\n",
		rep.Phase, rep.StopReason, rep.Duration.Round(time.Millisecond), rep.Frames, rep.Samples)
	trips := session.Trips()
	if trips.HasTrips() || trips.HasStumbles() {
		fmt.Println(trips.Summary())
	}
	if runErr != nil {
		logger.Error("session faulted", "report", trips.DetailedReport())
	}

	if dataDir != "" {
		writeArtifacts(logger, dataDir, rep, cfg.ContactColumns)
	}

	if runErr != nil {
		return cli.NewExitError(fmt.Sprintf("session fault: %v", runErr), 1)
	}
	return nil
}

// newLogger logs to a rotating file while the console owns the terminal,
// and to stderr otherwise unless a log file was asked for.
func newLogger(cfg *config.Config, interactive bool) (hclog.Logger, func()) {
	var out io.Writer = os.Stderr
	closeFn := func() {}

	if interactive || cfg.Log.File != config.Default().Log.File {
		lj := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   true,
		}
		out = lj
		closeFn = func() { _ = lj.Close() }
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       "picar",
		Level:      hclog.LevelFromString(cfg.Log.Level),
		Output:     out,
		JSONFormat: cfg.Log.JSON,
	}), closeFn
}

func openDataset(cfg *config.Config) (*dataset.Writer, func(), error) {
	var opts []dataset.Option
	closeFn := func() {}

	if cfg.Manifest {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create dataset directory: %w", err)
		}
		m, err := dataset.OpenManifest(filepath.Join(cfg.DataDir, dataset.ManifestFile))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, dataset.WithManifest(m))
		closeFn = func() { _ = m.Close() }
	}

	w, err := dataset.NewWriter(cfg.DataDir, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return w, closeFn, nil
}

func writeArtifacts(logger hclog.Logger, dataDir string, rep *picar.Report, columns int) {
	dir, err := picar.NewSessionDir(dataDir, rep.Started)
	if err != nil {
		logger.Error("create session directory", "error", err)
		return
	}
	path, err := picar.WriteReport(dir, rep)
	if err != nil {
		logger.Error("write session report", "error", err)
		return
	}
	fmt.Println("report:", path)

	if len(rep.SampleFiles) > 0 {
		sheet := picar.DefaultSheetConfig()
		if columns > 0 {
			sheet.Columns = columns
		}
		sheetPath := filepath.Join(dir, picar.ContactSheetFile)
		if err := picar.WriteContactSheet(sheetPath, dataDir, rep.SampleFiles, sheet); err != nil {
			logger.Error("write contact sheet", "error", err)
		} else {
			fmt.Println("contact sheet:", sheetPath)
		}
	}

	index, err := picar.WriteSessionIndex(filepath.Dir(dir))
	if err != nil {
		logger.Error("write session index", "error", err)
		return
	}
	logger.Debug("session index updated", "path", index)
}

// countingPersister keeps the console's sample counter in step with the disk.
type countingPersister struct {
	picar.Persister
	console *operators.Console
}

func (p countingPersister) Save(s picar.CapturedSample) (string, error) {
	name, err := p.Persister.Save(s)
	if err == nil {
		p.console.CountSample()
	}
	return name, err
}
