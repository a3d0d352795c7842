// GPS-disciplined oscillator daemon

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"example.com/gpsdo/base/watchdog"
	"example.com/gpsdo/base/zaplog"

	"example.com/gpsdo/core/bus"
	"example.com/gpsdo/core/config"
	"example.com/gpsdo/core/pair"
	"example.com/gpsdo/core/sync"
	"example.com/gpsdo/core/ts"

	"example.com/gpsdo/driver/clock"
	"example.com/gpsdo/driver/dac"
	"example.com/gpsdo/driver/f9t"
	"example.com/gpsdo/driver/tadd"
	"example.com/gpsdo/driver/tic"
)

var log *zap.Logger

func initLogger(verbose bool) {
	c := zap.NewDevelopmentConfig()
	c.DisableStacktrace = true
	c.EncoderConfig.EncodeCaller = func(
		caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		p := caller.TrimmedPath()
		if len(p) > 30 {
			p = "..." + p[len(p)-27:]
		}
		enc.AppendString(fmt.Sprintf("%30s", p))
	}
	if !verbose {
		c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var err error
	log, err = c.Build()
	if err != nil {
		panic(err)
	}
	zaplog.SetLogger(log)
}

func statusHandler(w *sync.PhaseWatch) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(rw).Encode(w.Status())
		if err != nil {
			log.Info("failed to write status", zap.Error(err))
		}
	}
}

func runMonitor(log *zap.Logger, addr string, w *sync.PhaseWatch) {
	prometheus.MustRegister(sync.NewCollector(w))
	http.Handle("/metrics", promhttp.Handler())
	http.Handle("/status", statusHandler(w))
	err := http.ListenAndServe(addr, nil)
	log.Fatal("failed to serve metrics", zap.Error(err))
}

func loadConfig(configFile string) config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal("failed to load configuration",
			zap.String("file", configFile), zap.Error(err))
	}
	return cfg
}

// ticTopics maps counter channels to the topics their events are published
// on.
func ticTopics(c config.TIC) map[string]string {
	return map[string]string{
		c.GNSSChannel: tic.TopicGNS,
		c.DSCChannel:  tic.TopicDSC,
	}
}

func openDAC(cfg config.Config) (*dac.DAC, func()) {
	d, b, err := dac.Open(log, cfg.DAC.Bus, cfg.DAC.Address, cfg.DAC.Gain)
	if err != nil {
		log.Fatal("failed to open DAC", zap.String("bus", cfg.DAC.Bus), zap.Error(err))
	}
	return d, func() {
		if err := b.Close(); err != nil {
			log.Info("failed to close I2C bus", zap.Error(err))
		}
	}
}

func runDaemon(configFile string) {
	cfg := loadConfig(configFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := &clock.SystemClock{Log: log}

	d, closeDAC := openDAC(cfg)
	defer closeDAC()
	err := d.Set(cfg.DAC.CodeInit)
	if err != nil {
		log.Fatal("failed to write initial DAC code", zap.Int("code", cfg.DAC.CodeInit), zap.Error(err))
	}

	arm, err := tadd.Open(log, clk, cfg.ARM.Pin)
	if err != nil {
		log.Fatal("failed to open ARM line", zap.String("pin", cfg.ARM.Pin), zap.Error(err))
	}
	guard := sync.NewStepGuard(log, clk, arm, cfg.ARMHold())
	w := sync.NewPhaseWatch(log, cfg.SyncParams(), d, guard, cfg.DAC.CodeInit)

	go runMonitor(log, cfg.MetricsAddr, w)

	warnIfSlow := cfg.WarnIfSlow()
	ticPub := bus.NewPublisher[ts.TicTs](log, "tic", warnIfSlow)
	qerrPub := bus.NewPublisher[ts.QerrTs](log, "f9t", warnIfSlow)
	pps := pair.NewPPS(log, ticPub, tic.TopicGNS, tic.TopicDSC, warnIfSlow)
	if cfg.GNSS.ApplyQerr {
		q := pair.NewQerr(log, pps.Pub, pair.TopicPPS, qerrPub, f9t.TopicTimTP, warnIfSlow)
		q.Pub.Subscribe(pair.TopicQerr, w.OnPair)
	} else {
		pps.Pub.Subscribe(pair.TopicPPS, w.OnPair)
	}

	errs := make(chan error, 2)
	ticEvents := make(chan tic.Event)
	qerrEvents := make(chan ts.QerrTs)

	ticPort, err := tic.Open(log, cfg.TIC.Port, cfg.TIC.Baud)
	if err != nil {
		log.Fatal("failed to open TIC port", zap.String("port", cfg.TIC.Port), zap.Error(err))
	}
	defer ticPort.Close()
	ticDog := watchdog.New(log, clk, "tic", cfg.TIC.QuietAfter())
	go ticDog.Run(ctx)
	go func() {
		errs <- tic.NewReader(log, clk, ticPort, ticDog).Run(ctx, ticEvents)
	}()

	if cfg.GNSS.ApplyQerr {
		gnssPort, err := f9t.Open(cfg.GNSS.Port, cfg.GNSS.Baud)
		if err != nil {
			log.Fatal("failed to open GNSS port", zap.String("port", cfg.GNSS.Port), zap.Error(err))
		}
		defer gnssPort.Close()
		gnssDog := watchdog.New(log, clk, "gnss", cfg.GNSS.QuietAfter())
		go gnssDog.Run(ctx)
		go func() {
			errs <- f9t.NewReader(log, clk, gnssPort, gnssDog).Run(ctx, qerrEvents)
		}()
	}

	log.Info("gpsdo running",
		zap.String("tic", cfg.TIC.Port),
		zap.Bool("applyQerr", cfg.GNSS.ApplyQerr),
		zap.Int("code", cfg.DAC.CodeInit))

	topics := ticTopics(cfg.TIC)
	for {
		select {
		case <-ctx.Done():
			log.Info("gpsdo stopping", zap.Stringer("mode", w.Mode()), zap.Int("code", w.Code()))
			return
		case err := <-errs:
			if ctx.Err() != nil {
				return
			}
			log.Fatal("input failed", zap.Error(err))
		case ev := <-ticEvents:
			topic, ok := topics[ev.Chan]
			if !ok {
				log.Debug("ignoring TIC channel", zap.String("chan", ev.Chan))
				continue
			}
			ticPub.Publish(topic, ev.Ts)
		case ev := <-qerrEvents:
			qerrPub.Publish(f9t.TopicTimTP, ev)
		}
	}
}

func runDAC(configFile string, code int) {
	cfg := loadConfig(configFile)
	if code < 0 {
		code = cfg.DAC.CodeInit
	}
	d, closeDAC := openDAC(cfg)
	defer closeDAC()
	err := d.Set(code)
	if err != nil {
		log.Fatal("failed to write DAC", zap.Int("code", code), zap.Error(err))
	}
	log.Info("DAC written", zap.Int("code", d.Code()))
}

func runARM(configFile string) {
	cfg := loadConfig(configFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := &clock.SystemClock{Log: log}
	arm, err := tadd.Open(log, clk, cfg.ARM.Pin)
	if err != nil {
		log.Fatal("failed to open ARM line", zap.String("pin", cfg.ARM.Pin), zap.Error(err))
	}
	err = arm.Pulse(ctx, cfg.ARMHold())
	if err != nil {
		log.Fatal("failed to pulse ARM line", zap.Error(err))
	}
	log.Info("ARM line pulsed", zap.Duration("hold", cfg.ARMHold()))
}

func exitWithUsage() {
	fmt.Println("usage: gpsdo run|dac|arm -config <file> [-verbose] [-code <n>]")
	os.Exit(1)
}

func main() {
	var (
		verbose    bool
		configFile string
		code       int
	)

	runFlags := flag.NewFlagSet("run", flag.ExitOnError)
	dacFlags := flag.NewFlagSet("dac", flag.ExitOnError)
	armFlags := flag.NewFlagSet("arm", flag.ExitOnError)

	runFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	runFlags.StringVar(&configFile, "config", "", "Config file")

	dacFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	dacFlags.StringVar(&configFile, "config", "", "Config file")
	dacFlags.IntVar(&code, "code", -1, "DAC code, defaults to dac.code_init")

	armFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	armFlags.StringVar(&configFile, "config", "", "Config file")

	if len(os.Args) < 2 {
		exitWithUsage()
	}

	switch os.Args[1] {
	case runFlags.Name():
		err := runFlags.Parse(os.Args[2:])
		if err != nil || runFlags.NArg() != 0 {
			exitWithUsage()
		}
		if configFile == "" {
			exitWithUsage()
		}
		initLogger(verbose)
		runDaemon(configFile)
	case dacFlags.Name():
		err := dacFlags.Parse(os.Args[2:])
		if err != nil || dacFlags.NArg() != 0 {
			exitWithUsage()
		}
		if configFile == "" || code > dac.CodeMax {
			exitWithUsage()
		}
		initLogger(verbose)
		runDAC(configFile, code)
	case armFlags.Name():
		err := armFlags.Parse(os.Args[2:])
		if err != nil || armFlags.NArg() != 0 {
			exitWithUsage()
		}
		if configFile == "" {
			exitWithUsage()
		}
		initLogger(verbose)
		runARM(configFile)
	default:
		exitWithUsage()
	}
}
