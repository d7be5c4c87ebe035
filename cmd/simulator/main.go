package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/catalog"
	"github.com/polytopelabs/hyperpuzzle-simulator/core"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/replay"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/sim/session"
	"github.com/polytopelabs/hyperpuzzle-simulator/timectrl"
)

// Config collects the simulator's startup settings.
type Config struct {
	ScenarioPath  string
	Tick          time.Duration
	Duration      time.Duration
	TwistInterval time.Duration
	Accelerated   bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ScenarioPath, "scenario", "configs/scenario.json", "path to a JSON scenario file")
	flag.DurationVar(&cfg.Tick, "tick", 50*time.Millisecond, "frame interval")
	flag.DurationVar(&cfg.Duration, "duration", 0, "total frame time to simulate (0 runs until the script settles)")
	flag.DurationVar(&cfg.TwistInterval, "twist-interval", 300*time.Millisecond, "frame time between scripted twists")
	flag.BoolVar(&cfg.Accelerated, "accelerated", true, "run frames as fast as possible (vs real-time)")
	flag.Parse()

	if err := runScenario(cfg, os.Stdout, logging.NewFromEnv()); err != nil {
		fmt.Fprintln(os.Stderr, "simulator:", err)
		os.Exit(1)
	}
}

// runScenario loads the scenario, schedules its scramble and scripted
// twists on a frame loop, and steps the session until the script settles
// or the requested duration elapses. The report goes to out; engine logs
// go to the logger.
func runScenario(cfg Config, out io.Writer, log logging.Logger) error {
	cat := catalog.New()
	if err := catalog.RegisterStandard(cat); err != nil {
		return err
	}

	f, err := os.Open(cfg.ScenarioPath)
	if err != nil {
		return err
	}
	scenario, err := core.LoadScenario(f)
	f.Close()
	if err != nil {
		return err
	}

	def, err := cat.Get(scenario.Puzzle)
	if err != nil {
		return err
	}
	twists, err := scenario.ResolveTwists(def)
	if err != nil {
		return err
	}
	var scramble *core.ScrambleParams
	if params, ok := scenario.ScrambleParams(); ok {
		scramble = &params
	}

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	start := time.Now().UTC()
	loop := timectrl.NewFrameLoop(start, cfg.Tick, mode)

	sess := session.New(def, session.WithClock(loop.Clock()), session.WithLogger(log))
	sched := replay.NewScheduler(loop.Clock())
	player := replay.NewPlayer(sess, sched, replay.WithLogger(log))

	script := replay.Script(def.Name, scramble, twists, cfg.TwistInterval)
	scriptEnd, err := player.Load(start, script)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Loaded scenario %s: %d scripted twists, scramble=%v\n",
		scenario.Puzzle, len(twists), scramble != nil)
	fmt.Fprintf(out, "Starting frame loop: tick=%s, mode=%v, script ends at +%s\n",
		cfg.Tick, mode, scriptEnd)

	frames := 0
	loop.AddListener(func(now time.Time, delta time.Duration) {
		sched.RunDue()
		frames++
		if !sess.Step() {
			// Nothing moved this frame; stop once the script is done too.
			if cfg.Duration <= 0 && player.Pending() == 0 {
				loop.Stop()
			}
			return
		}
		fmt.Fprintf(out, "[%s] frame %d: twists=%d pending=%d animating=%v\n",
			now.Format(time.RFC3339), frames, sess.TwistCount(), player.Pending(), sess.AnimationPending())
	})

	<-loop.Start(cfg.Duration)

	if rec, ok := sess.Scramble(); ok {
		fmt.Fprintf(out, "Scramble: %s\n", rec.Notation)
	}
	fmt.Fprintf(out, "Scenario complete after %d frames (%s frame time): twists=%d solved=%v cache=%d transforms\n",
		frames, loop.Now().Sub(start), sess.TwistCount(), sess.State().IsSolved(), sess.Cache().Len())
	return nil
}
