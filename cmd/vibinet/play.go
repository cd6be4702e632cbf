package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiovibi/vibinet/internal/engine"
	"github.com/studiovibi/vibinet/internal/game"
	"github.com/studiovibi/vibinet/internal/input"
	"github.com/studiovibi/vibinet/internal/protocol"
	"github.com/studiovibi/vibinet/internal/render"
	"github.com/studiovibi/vibinet/internal/transport"
)

var (
	playConnect     string
	playRoom        string
	playName        string
	playTickRate    int
	playToleranceMS int64
	playMode        string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Join a room and render it in the terminal",
	RunE:  runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playConnect, "connect", "ws://localhost:7777/ws", "broker websocket URL")
	playCmd.Flags().StringVar(&playRoom, "room", "lobby", "room name")
	playCmd.Flags().StringVar(&playName, "name", "", "player display name (defaults to a generated one)")
	playCmd.Flags().IntVar(&playTickRate, "tick-rate", 24, "simulation ticks per second")
	playCmd.Flags().Int64Var(&playToleranceMS, "tolerance-ms", 300, "official-time derivation tolerance in ms")
	playCmd.Flags().StringVar(&playMode, "mode", "auto", "render mode: auto, ascii, halfblock, or braille")
}

func parseMode(s string) render.Mode {
	switch s {
	case "ascii":
		return render.ModeASCII
	case "halfblock":
		return render.ModeHalfBlock
	case "braille":
		return render.ModeBraille
	default:
		return render.ModeAuto
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	log := newLogger()

	tr, err := transport.Dial(playConnect, log)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer tr.Close()

	playerID := rand.Intn(1_000_000)
	name := playName
	if name == "" {
		name = fmt.Sprintf("player-%d", playerID)
	}

	tileMap := game.DemoLevel()
	stepper := game.NewStepper(tileMap, playerID)

	cfg := engine.DefaultConfig(playTickRate, playToleranceMS)
	eng := engine.New[game.WorldState](playRoom, game.WorldState{}, stepper.OnTick, stepper.OnPost, stepper.Smooth, cfg, tr, log)

	if err := waitSynced(eng, 10*time.Second); err != nil {
		return err
	}
	if _, err := eng.Post(protocol.EncodeJoin(playerID, name, 3, 3)); err != nil {
		return fmt.Errorf("post join: %w", err)
	}

	renderer := render.SelectRenderer(render.Detect(), parseMode(playMode))
	if err := renderer.Init(); err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	defer renderer.Close()
	renderer.SetTileMap(game.RenderTileMap(tileMap))

	return runGameLoop(eng, renderer, playerID, cfg.TickRate)
}

// runGameLoop drives one render/input/post cycle per tick. Every intent
// sampled between frames is recorded into an input.Buffer; only the
// buffer's bitwise-OR for the tick is actually posted (the wire protocol
// has no room for sub-tick input history), but the buffered frame count
// drives the HUD's "inputs/tick" readout so a dropped-frame client is
// visible without digging through logs.
func runGameLoop(eng *engine.Engine[game.WorldState], renderer render.GameRenderer, playerID, tickRate int) error {
	frame := time.NewTicker(time.Second / time.Duration(tickRate))
	defer frame.Stop()

	buf := input.NewBuffer()
	heldIntent := protocol.IntentNone

	for range frame.C {
		quit := false
		sampled := 0
		for {
			ev, ok := renderer.PollInput()
			if !ok {
				break
			}
			switch ev.Type {
			case render.InputQuit:
				quit = true
			case render.InputKey:
				heldIntent |= ev.Intent
				buf.Add(ev.Intent)
				sampled++
			}
		}
		if quit {
			return nil
		}

		state, err := eng.ComputeRenderState()
		if err != nil {
			continue
		}

		if _, err := eng.Post(protocol.EncodeIntent(playerID, heldIntent)); err != nil {
			continue
		}
		heldIntent = protocol.IntentNone
		buf.Flush()
		buf.Tick()

		camera := render.Camera{X: 3, Y: 3}
		for _, p := range state.Players {
			if p.ID == playerID {
				camera.X, camera.Y = p.Position.X, p.Position.Y
			}
		}

		renderer.BeginFrame()
		renderer.RenderWorld(state, camera)
		serverTime, _ := eng.ServerTime()
		renderer.DrawHUD(fmt.Sprintf("room=%s tick=%d server_time=%d players=%d inputs/tick=%d",
			playRoom, state.Tick, serverTime, len(state.Players), sampled))
		renderer.EndFrame()
	}
	return nil
}

// waitSynced blocks until the Engine's clock reports synced or timeout
// elapses, so the first join post isn't dropped by ErrNotSynced.
func waitSynced(eng *engine.Engine[game.WorldState], timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for eng.State() != engine.StateSynced {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for broker clock sync")
		}
		time.Sleep(25 * time.Millisecond)
	}
	return nil
}
