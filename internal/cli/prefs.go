package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/mrlokans/shelfscan/internal/entities"
)

// PrefsCommand shows or changes the default tag filter.
type PrefsCommand struct {
	env   Env
	Set   string
	Clear bool
}

func NewPrefsCommand(env Env) *PrefsCommand {
	return &PrefsCommand{env: env}
}

func (cmd *PrefsCommand) ParseFlags(args []string) error {
	fs := newFlagSet("prefs", "[options]",
		"Show or change the tag filter applied when the collection loads.",
		"prefs",
		"prefs -set 12,34",
		"prefs -clear",
	)
	fs.StringVar(&cmd.Set, "set", "", "Comma-separated tag ids to filter by")
	fs.BoolVar(&cmd.Clear, "clear", false, "Show every book by default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.Clear && cmd.Set != "" {
		return fmt.Errorf("-set and -clear are mutually exclusive")
	}
	return nil
}

func (cmd *PrefsCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		var (
			prefs entities.UserPreference
			err   error
		)
		switch {
		case cmd.Clear:
			prefs, err = svc.UpdatePreferences(ctx, []string{})
		case cmd.Set != "":
			prefs, err = svc.UpdatePreferences(ctx, splitList(cmd.Set))
		default:
			prefs, err = svc.Preferences(ctx)
		}
		if err != nil {
			return err
		}

		if len(prefs.DefaultTagIDs) == 0 {
			fmt.Fprintln(cmd.env.stdout(), "Default filter: none (all books)")
			return nil
		}
		names := make([]string, 0, len(prefs.DefaultTagIDs))
		tags := svc.Tags()
		for _, id := range prefs.DefaultTagIDs {
			name := id
			for _, t := range tags {
				if t.ID == id {
					name = fmt.Sprintf("%s (%s)", t.Name, id)
					break
				}
			}
			names = append(names, name)
		}
		fmt.Fprintf(cmd.env.stdout(), "Default filter: %s\n", strings.Join(names, ", "))
		return nil
	})
}
