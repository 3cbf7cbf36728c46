package cli

// cmdConfigAdd and cmdConfigRemove implement `config add|rm <key> <value>`
// (spec.md §6), grounded on original_source/dbcrossbar/src/cmd/config.rs.
// Unlike the original's closed set of recognized keys (only `temporary` at
// the time it was written), this store accepts any key: new drivers and
// environment knobs can be added as persisted defaults without a matching
// code change here.
type cmdConfigAdd struct {
	app *App

	Positional struct {
		Key   string `positional-arg-name:"key" required:"yes"`
		Value string `positional-arg-name:"value" required:"yes"`
	} `positional-args:"yes"`
}

func (c *cmdConfigAdd) Execute(_ []string) error {
	if err := c.app.init(); err != nil {
		return err
	}
	return c.app.cfg.Add(c.Positional.Key, c.Positional.Value)
}

type cmdConfigRemove struct {
	app *App

	Positional struct {
		Key string `positional-arg-name:"key" required:"yes"`
		// Value is accepted for symmetry with `config add <key> <value>`
		// (spec.md §6) but otherwise unused: this store holds one value per
		// key, not the original's per-key array, so removing a key never
		// needs to name which value to drop.
		Value string `positional-arg-name:"value" required:"yes"`
	} `positional-args:"yes"`
}

func (c *cmdConfigRemove) Execute(_ []string) error {
	if err := c.app.init(); err != nil {
		return err
	}
	return c.app.cfg.Remove(c.Positional.Key)
}
