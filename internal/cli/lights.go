package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajur/huddlelight/internal/bridge"
	"github.com/ajur/huddlelight/internal/config"
)

var lightsCmd = &cobra.Command{
	Use:   "lights",
	Short: "List the lights the bridge reports",
	Long: `Query the configured bridge once and print every light it reports,
marking the ones the config file selects. Useful for picking identifiers
for the 'lights' list.`,
	Args: cobra.NoArgs,
	RunE: runLights,
}

func runLights(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	client := bridge.NewClient(cfg.Bridge.Address, cfg.Bridge.Token)
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	listing, err := client.Lights(ctx)
	if err != nil {
		return fmt.Errorf("bridge at %s is not reachable: %w", cfg.Bridge.Address, err)
	}

	selected := make(map[string]bool, len(cfg.Lights))
	for _, id := range cfg.Lights {
		selected[id] = true
	}

	ids := make([]string, 0, len(listing))
	for id := range listing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("bridge %s reports %d light(s):\n", cfg.Bridge.Address, len(listing))
	for _, id := range ids {
		l := listing[id]
		mark := " "
		if selected[id] {
			mark = "*"
		}
		state := "off"
		if l.State.On != nil && *l.State.On {
			state = "on"
		}
		fmt.Printf(" %s id=%s  name=%q  type=%s  state=%s\n", mark, id, l.Name, l.Type, state)
	}
	for _, id := range cfg.Lights {
		if _, ok := listing[id]; !ok {
			fmt.Printf(" ! configured light %q not reported by bridge\n", id)
		}
	}
	return nil
}
