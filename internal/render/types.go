package render

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/studiovibi/vibinet/internal/game"
	"github.com/studiovibi/vibinet/internal/protocol"
)

// Camera is the viewport into the world: World coordinates centered at
// (X, Y). RenderWorld translates every WorldState position by this offset
// before drawing. TcellRenderer sizes the viewport to the screen and does
// not read Width or Height.
type Camera struct {
	X, Y          float64
	Width, Height float64
}

// Color is a renderer-agnostic RGB color; backends translate it to their
// native representation (tcell.NewRGBColor, ANSI 256-color approximation,
// etc).
type Color struct {
	R, G, B uint8
}

var (
	ColorBlack  = Color{0, 0, 0}
	ColorWhite  = Color{255, 255, 255}
	ColorRed    = Color{220, 60, 60}
	ColorYellow = Color{230, 200, 60}
	ColorGreen  = Color{80, 200, 100}
)

// Blend mixes a and b perceptually (CIE-Lab) at t in [0,1], t=0 is a and
// t=1 is b. Used for the charging player's tint, the health bar color, and
// LatencyColor, smoothly rather than stepping between discrete colors.
func Blend(a, b Color, t float64) Color {
	ca := colorful.Color{R: float64(a.R) / 255, G: float64(a.G) / 255, B: float64(a.B) / 255}
	cb := colorful.Color{R: float64(b.R) / 255, G: float64(b.G) / 255, B: float64(b.B) / 255}
	c := ca.BlendLab(cb, clamp01(t))
	r, g, b := c.RGB255()
	return Color{r, g, b}
}

// LatencyColor blends green -> yellow -> red as rtt grows from 0 to 200ms,
// for a HUD ping readout that degrades smoothly rather than snapping between
// thresholds.
func LatencyColor(rttMS int64) Color {
	const goodMS, badMS = 0.0, 200.0
	t := (float64(rttMS) - goodMS) / (badMS - goodMS)
	t = clamp01(t)
	if t <= 0.5 {
		return Blend(ColorGreen, ColorYellow, t/0.5)
	}
	return Blend(ColorYellow, ColorRed, (t-0.5)/0.5)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// SpriteGlyph is how one sprite ID is drawn: a character plus foreground
// color. Backgrounds are supplied by the caller (RenderWorld picks black).
type SpriteGlyph struct {
	Char rune
	FG   Color
	BG   Color
}

// SpriteAtlas maps a game.Sprite's opaque ID to a glyph. Unknown IDs fall
// back to a placeholder so a renderer never panics on an unrecognized
// sprite — the demo game and the renderer evolve independently.
type SpriteAtlas struct {
	glyphs   map[string]SpriteGlyph
	fallback SpriteGlyph
}

// Get returns the glyph for id, or the atlas's fallback glyph if id is
// unrecognized.
func (a *SpriteAtlas) Get(id string) SpriteGlyph {
	if g, ok := a.glyphs[id]; ok {
		return g
	}
	return a.fallback
}

// DefaultASCIIAtlas maps the demo game's sprite IDs to plain ASCII glyphs,
// one color per entity kind.
func DefaultASCIIAtlas() *SpriteAtlas {
	return &SpriteAtlas{
		glyphs: map[string]SpriteGlyph{
			"player":          {Char: '@', FG: ColorWhite, BG: ColorBlack},
			"slime":           {Char: 's', FG: ColorGreen, BG: ColorBlack},
			"goomba":          {Char: 'g', FG: ColorRed, BG: ColorBlack},
			game.FistSpriteID: {Char: '*', FG: ColorYellow, BG: ColorBlack},
		},
		fallback: SpriteGlyph{Char: '?', FG: ColorWhite, BG: ColorBlack},
	}
}

// DefaultHalfBlockAtlas swaps in block glyphs for terminals that render
// solid blocks more cleanly than letterforms; the color table is shared
// with the ASCII atlas since tcell draws both as colored cells either way.
func DefaultHalfBlockAtlas() *SpriteAtlas {
	return &SpriteAtlas{
		glyphs: map[string]SpriteGlyph{
			"player":          {Char: '█', FG: ColorWhite, BG: ColorBlack},
			"slime":           {Char: '▓', FG: ColorGreen, BG: ColorBlack},
			"goomba":          {Char: '▓', FG: ColorRed, BG: ColorBlack},
			game.FistSpriteID: {Char: '●', FG: ColorYellow, BG: ColorBlack},
		},
		fallback: SpriteGlyph{Char: '▒', FG: ColorWhite, BG: ColorBlack},
	}
}

// InputEventType discriminates the variants of InputEvent.
type InputEventType int

const (
	InputNone InputEventType = iota
	InputKey
	InputResize
	InputQuit
)

// InputEvent is a single translated input: a held-intent key, a terminal
// resize, or a quit request. PollInput returns these so the host's game
// loop never depends on a specific backend's event type.
type InputEvent struct {
	Type   InputEventType
	Intent protocol.Intent
	Quit   bool
}

// GameRenderer is the contract the demo's game loop drives: initialize a
// backend, feed it the Engine's blended WorldState each frame, and poll
// translated input. TcellRenderer is the only implementation; the interface
// exists so a future backend (half-block, braille, a GUI) can be
// substituted without touching the game loop. RenderWorld takes the
// entity-handle-free game.WorldState directly — the same value
// engine.Engine[game.WorldState].ComputeRenderState returns — rather than a
// live *game.World, so a renderer never needs to rebuild ECS entities just
// to draw them.
type GameRenderer interface {
	Init() error
	Close()
	BeginFrame()
	EndFrame()
	ViewportSize() (float64, float64)
	SetTileMap(tiles [][]rune)
	RenderWorld(state game.WorldState, camera Camera)
	RenderText(x, y float64, text string, color Color)
	DrawHUD(text string)
	PollInput() (InputEvent, bool)
}
