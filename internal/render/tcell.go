package render

import (
	"github.com/gdamore/tcell/v2"

	"github.com/studiovibi/vibinet/internal/game"
	"github.com/studiovibi/vibinet/internal/protocol"
)

// TcellRenderer renders using tcell for cross-platform terminal support. It
// draws straight from a game.WorldState — the Engine's blended render state
// — rather than walking a live *game.World, so drawing a frame never
// rebuilds ECS entities.
type TcellRenderer struct {
	screen  tcell.Screen
	atlas   *SpriteAtlas
	tileMap [][]rune // Cached tile map for rendering
	eventCh chan tcell.Event
	quitCh  chan struct{}
}

// NewTcellRenderer creates a new tcell-based renderer
func NewTcellRenderer() *TcellRenderer {
	return &TcellRenderer{
		atlas:   DefaultASCIIAtlas(),
		eventCh: make(chan tcell.Event, 32),
		quitCh:  make(chan struct{}),
	}
}

// SetAtlas allows overriding the default sprite atlas
func (r *TcellRenderer) SetAtlas(atlas *SpriteAtlas) {
	r.atlas = atlas
}

// SetTileMap sets the tile map to render. Implements GameRenderer.
func (r *TcellRenderer) SetTileMap(tiles [][]rune) {
	r.tileMap = tiles
}

func (r *TcellRenderer) Init() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.Clear()
	r.screen = screen

	// Start event polling goroutine
	go r.pollEvents()

	return nil
}

func (r *TcellRenderer) pollEvents() {
	for {
		select {
		case <-r.quitCh:
			return
		default:
			ev := r.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case r.eventCh <- ev:
			default:
				// Drop event if channel full
			}
		}
	}
}

func (r *TcellRenderer) Close() {
	close(r.quitCh)
	if r.screen != nil {
		r.screen.Fini()
	}
}

func (r *TcellRenderer) BeginFrame() {
	if r.screen != nil {
		r.screen.Clear()
	}
}

func (r *TcellRenderer) EndFrame() {
	if r.screen != nil {
		r.screen.Show()
	}
}

func (r *TcellRenderer) ViewportSize() (float64, float64) {
	if r.screen == nil {
		return 80, 24
	}
	w, h := r.screen.Size()
	return float64(w), float64(h)
}

// cameraOrigin computes the top-left world coordinate the viewport scrolls
// to, clamped to the level's bounds once a tile map is installed.
func (r *TcellRenderer) cameraOrigin(camera Camera, screenW, screenH int) (int, int) {
	camX := int(camera.X) - screenW/2
	camY := int(camera.Y) - screenH/2
	if camX < 0 {
		camX = 0
	}
	if camY < 0 {
		camY = 0
	}
	if len(r.tileMap) > 0 && len(r.tileMap[0]) > 0 {
		if maxX := len(r.tileMap[0]) - screenW; maxX >= 0 && camX > maxX {
			camX = maxX
		}
		if maxY := len(r.tileMap) - screenH; maxY >= 0 && camY > maxY {
			camY = maxY
		}
	}
	return camX, camY
}

// RenderWorld draws one frame: level tiles, then enemies, then in-flight
// fists, then players last so a player glyph is never hidden behind
// scenery. A charging player's glyph tints toward yellow with charge
// progress, and every player shows a health bar above it; enemies are keyed
// to a glyph by Kind rather than one generic marker.
func (r *TcellRenderer) RenderWorld(state game.WorldState, camera Camera) {
	if r.screen == nil {
		return
	}

	screenW, screenH := r.screen.Size()
	camX, camY := r.cameraOrigin(camera, screenW, screenH)

	r.drawTiles(camX, camY, screenW, screenH)

	for _, e := range state.Enemies {
		r.drawGlyph(e.Position, camX, camY, screenW, screenH, r.atlas.Get(enemySpriteID(e.Kind)))
	}
	for _, f := range state.Fists {
		r.drawGlyph(f.Position, camX, camY, screenW, screenH, r.atlas.Get(game.FistSpriteID))
	}
	for _, p := range state.Players {
		r.drawPlayer(p, camX, camY, screenW, screenH)
	}
}

func (r *TcellRenderer) drawTiles(camX, camY, screenW, screenH int) {
	if r.tileMap == nil {
		return
	}
	for y := 0; y < screenH && y+camY < len(r.tileMap); y++ {
		row := r.tileMap[y+camY]
		for x := 0; x < screenW && x+camX < len(row); x++ {
			if ch := row[x+camX]; ch != ' ' {
				r.setCell(x, y, ch, ColorWhite, ColorBlack)
			}
		}
	}
}

func (r *TcellRenderer) drawGlyph(pos game.Position, camX, camY, screenW, screenH int, sprite SpriteGlyph) {
	x, y := int(pos.X)-camX, int(pos.Y)-camY
	if x >= 0 && x < screenW && y >= 0 && y < screenH {
		r.setCell(x, y, sprite.Char, sprite.FG, sprite.BG)
	}
}

// drawPlayer draws the player glyph, tinted by charge/attack state, plus a
// compact health bar one row above it.
func (r *TcellRenderer) drawPlayer(p game.PlayerSnapshot, camX, camY, screenW, screenH int) {
	x, y := int(p.Position.X)-camX, int(p.Position.Y)-camY
	if x < 0 || x >= screenW || y < 0 || y >= screenH {
		return
	}

	sprite := r.atlas.Get("player")
	switch {
	case p.Attack.Charging:
		sprite.FG = Blend(sprite.FG, ColorYellow, chargeProgress(p.Attack))
	case p.Attack.Attacking:
		sprite.FG = ColorRed
	}
	r.setCell(x, y, sprite.Char, sprite.FG, sprite.BG)

	if y > 0 && p.Health.Max > 0 {
		r.drawHealthBar(x, y-1, p.Health)
	}
}

func chargeProgress(a game.AttackState) float64 {
	return clamp01(float64(a.ChargeTicks) / float64(game.MaxChargeTicks))
}

// drawHealthBar renders a fixed-width bar of filled/empty cells colored by
// remaining health fraction, its left edge anchored at (x, y).
func (r *TcellRenderer) drawHealthBar(x, y int, hp game.Health) {
	const width = 5
	frac := clamp01(float64(hp.Current) / float64(hp.Max))
	filled := int(frac*width + 0.5)
	color := Blend(ColorRed, ColorGreen, frac)

	for i := 0; i < width; i++ {
		ch := '-'
		if i < filled {
			ch = '='
		}
		r.setCell(x+i, y, ch, color, ColorBlack)
	}
}

// enemySpriteID maps an empty Kind (shouldn't happen in practice, but a
// renderer must never panic on it) to a sane default glyph.
func enemySpriteID(kind string) string {
	if kind == "" {
		return "slime"
	}
	return kind
}

func (r *TcellRenderer) RenderText(x, y float64, text string, color Color) {
	if r.screen == nil {
		return
	}
	ix, iy := int(x), int(y)
	for i, ch := range text {
		r.setCell(ix+i, iy, ch, color, ColorBlack)
	}
}

func (r *TcellRenderer) PollInput() (InputEvent, bool) {
	select {
	case ev := <-r.eventCh:
		return r.translateEvent(ev), true
	default:
		return InputEvent{Type: InputNone}, false
	}
}

func (r *TcellRenderer) translateEvent(ev tcell.Event) InputEvent {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		intent := protocol.IntentNone

		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return InputEvent{Type: InputQuit, Quit: true}
		case tcell.KeyLeft:
			intent = protocol.IntentLeft
		case tcell.KeyRight:
			intent = protocol.IntentRight
		case tcell.KeyUp:
			intent = protocol.IntentJump
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q', 'Q':
				return InputEvent{Type: InputQuit, Quit: true}
			case 'a', 'A':
				intent = protocol.IntentLeft
			case 'd', 'D':
				intent = protocol.IntentRight
			case 'w', 'W', ' ':
				intent = protocol.IntentJump
			case 'j', 'J':
				intent = protocol.IntentAttack
			case 'k', 'K':
				intent = protocol.IntentUse
			}
		}

		if intent != protocol.IntentNone {
			return InputEvent{Type: InputKey, Intent: intent}
		}

	case *tcell.EventResize:
		if r.screen != nil {
			r.screen.Sync()
		}
		return InputEvent{Type: InputResize}
	}

	return InputEvent{Type: InputNone}
}

// setCell is a helper to set a cell with colors
func (r *TcellRenderer) setCell(x, y int, ch rune, fg, bg Color) {
	if r.screen == nil {
		return
	}
	fgColor := tcell.NewRGBColor(int32(fg.R), int32(fg.G), int32(fg.B))
	bgColor := tcell.NewRGBColor(int32(bg.R), int32(bg.G), int32(bg.B))
	style := tcell.StyleDefault.Foreground(fgColor).Background(bgColor)
	r.screen.SetContent(x, y, ch, nil, style)
}

// DrawHUD draws the heads-up display (convenience method for terminal)
func (r *TcellRenderer) DrawHUD(text string) {
	if r.screen == nil {
		return
	}
	_, h := r.screen.Size()
	r.RenderText(0, float64(h-1), text, ColorYellow)
}
