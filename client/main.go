// playctl administers a running state server.
package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"

	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/logger"
	"github.com/hectormc-main/casa-playgroundServer/network"
	"github.com/hectormc-main/casa-playgroundServer/rpc"
)

var CLI struct {
	RPC   string `help:"Address of the RPC server." default:"localhost:8081" env:"PLAYCTL_RPC"`
	HTTP  string `help:"Address of the HTTP server, used by watch." default:"localhost:8080" env:"PLAYCTL_HTTP"`
	Debug bool   `help:"Whether to enable debug logging."`

	Features struct {
		List struct{} `cmd:"" help:"List every feature."`
		Get  struct {
			Name string `arg:"" help:"Feature name."`
		} `cmd:"" help:"Show one feature."`
		Set struct {
			Name    string `arg:"" help:"Feature name."`
			Enabled bool   `help:"Enable the feature." negatable:""`
			Options string `help:"Feature options as a JSON object." placeholder:"JSON"`
		} `cmd:"" help:"Change a feature."`
		Reset struct{} `cmd:"" help:"Restore every feature default."`
	} `cmd:"" help:"Inspect and change features."`

	Game struct {
		Show  struct{} `cmd:"" help:"Show the active game."`
		Start struct {
			Name     string `arg:"" help:"Game name."`
			Settings string `help:"Settings as a JSON object." placeholder:"JSON"`
		} `cmd:"" help:"Start a game."`
		Update struct {
			Name     string `arg:"" help:"Name of the active game."`
			Settings string `help:"Replacement settings as a JSON object." placeholder:"JSON"`
		} `cmd:"" help:"Replace the settings of the active game."`
		Stop struct{} `cmd:"" help:"Stop the active game."`
	} `cmd:"" help:"Manage the game session."`

	Watch struct{} `cmd:"" help:"Stream state events until interrupted."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		writeError(err)
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("playctl"),
		kong.Description("administer a playground state server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	level := "warn"
	if CLI.Debug {
		level = "debug"
	}
	if err := logger.Init(level, true); err != nil {
		writeError(err)
	}
	defer logger.Sync()

	if ctx.Command() == "watch" {
		if err := watch(CLI.HTTP); err != nil {
			writeError(err)
		}
		return
	}

	client, err := rpc.Dial(CLI.RPC, "playctl")
	if err != nil {
		writeError(fmt.Errorf("connect to %s: %w", CLI.RPC, err))
	}
	defer client.Close()

	if err := run(ctx.Command(), client); err != nil {
		writeError(err)
	}
}

func run(command string, client *rpc.Client) error {
	switch command {
	case "features list":
		all, err := client.ListFeatures()
		if err != nil {
			return err
		}
		printJSON(all)
	case "features get <name>":
		st, err := client.GetFeature(CLI.Features.Get.Name)
		if err != nil {
			return err
		}
		printJSON(st)
	case "features set <name>":
		proposed := feature.State{Enabled: CLI.Features.Set.Enabled}
		if CLI.Features.Set.Options != "" {
			proposed.Options = json.RawMessage(CLI.Features.Set.Options)
		}
		st, err := client.ChangeFeature(CLI.Features.Set.Name, proposed)
		if err != nil {
			return err
		}
		printJSON(st)
	case "features reset":
		return client.ResetFeatures()
	case "game show":
		g, err := client.CurrentGame()
		if err != nil {
			return err
		}
		printJSON(g)
	case "game start <name>":
		g, err := client.StartGame(CLI.Game.Start.Name, settings(CLI.Game.Start.Settings))
		if err != nil {
			return err
		}
		printJSON(g)
	case "game update <name>":
		g, err := client.UpdateGame(CLI.Game.Update.Name, settings(CLI.Game.Update.Settings))
		if err != nil {
			return err
		}
		printJSON(g)
	case "game stop":
		g, err := client.StopGame()
		if err != nil {
			return err
		}
		printJSON(g)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func settings(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// watch prints every envelope from /ws until the server goes away or SIGINT.
func watch(addr string) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	logger.Log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			var env network.Envelope
			if err := json.Unmarshal(message, &env); err != nil {
				logger.Log.Warnf("Skipping malformed message: %v", err)
				continue
			}
			printJSON(env)
		}
	}()

	select {
	case err := <-done:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil
		}
		return err
	case <-interrupt:
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			logger.Log.Warnf("Write close error: %v", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return nil
	}
}
