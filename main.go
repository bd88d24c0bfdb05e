package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/rakyll/portmidi"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	windowWidth  = 480
	windowHeight = 200
)

// initLogger configures the shared slog logger; stdlib log routes through the
// same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}

func main() {
	room := flag.String("room", "lobby", "room to join")
	name := flag.String("name", "", "display name")
	color := flag.Int("color", 0, "color index for the renderer")
	server := flag.String("server", "", "websocket relay url, empty for offline")
	useMidi := flag.Bool("midi", false, "read notes from the default midi input")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	initLogger(*debug)

	engine := NewEngine()
	if err := engine.Init(); err != nil {
		slog.Error("audio init failed", "err", err)
		os.Exit(1)
	}

	var transport Transport
	if *server != "" {
		transport = NewWSTransport(*server)
	} else {
		// offline: a private loopback hub, nothing leaves the process
		transport = NewLoopHub().Transport()
	}

	session := NewSession(*room, *name, *color, engine, transport)
	if err := session.Join(); err != nil {
		slog.Error("joining room failed", "room", *room, "err", err)
		os.Exit(1)
	}
	go session.Run()

	keyboard := NewKeyboard(session)

	if *useMidi {
		portmidi.Initialize()
		defer portmidi.Terminate()

		mc, err := OpenController(portmidi.DefaultInputDeviceID(), session)
		if err != nil {
			slog.Warn("midi unavailable", "err", err)
		} else {
			defer mc.Shutdown()
		}
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		slog.Error("sdl init failed", "err", err)
		os.Exit(1)
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("jam", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		windowWidth, windowHeight, sdl.WINDOW_SHOWN)
	if err != nil {
		slog.Error("creating window failed", "err", err)
		os.Exit(1)
	}
	defer window.Destroy()

	quit := make(chan struct{})
	console := NewConsole(session, keyboard, nil, func() { close(quit) })
	go console.Run()

	slog.Info("joined", "room", *room, "participant", session.SelfID())

	running := true
	for running {
		select {
		case <-quit:
			running = false
		default:
		}

		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch event := event.(type) {
			case *sdl.QuitEvent:
				running = false
			case *sdl.KeyboardEvent:
				if event.Repeat != 0 {
					continue
				}
				switch event.Type {
				case sdl.KEYDOWN:
					keyboard.KeyDown(event.Keysym.Sym)
				case sdl.KEYUP:
					keyboard.KeyUp(event.Keysym.Sym)
				}
			}
		}

		sdl.Delay(5)
	}

	keyboard.ReleaseAll()
	session.Leave()
}
