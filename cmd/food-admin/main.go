package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/saiset-co/sai-food-admin/config"
	"github.com/saiset-co/sai-food-admin/service"
	"github.com/saiset-co/sai-food-admin/types"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config.yml",
		Usage:   "path to the YAML configuration",
		EnvVars: []string{"FOOD_ADMIN_CONFIG"},
	}

	start := &cli.Command{
		Name:   "start",
		Usage:  "Start the food admin",
		Flags:  []cli.Flag{configFlag},
		Action: startAction,
	}

	return &cli.App{
		Name:  "food-admin",
		Usage: "Back office for the food catalogue API",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			start,
			{
				Name:   "check-config",
				Usage:  "Load and validate the configuration, then exit",
				Flags:  []cli.Flag{configFlag},
				Action: checkConfigAction,
			},
		},
		Action: startAction,
	}
}

func startAction(c *cli.Context) error {
	svc, err := service.NewService(context.Background(), c.String("config"))
	if err != nil {
		return err
	}
	return svc.Start()
}

func checkConfigAction(c *cli.Context) error {
	path := c.String("config")

	cfg, err := config.NewLoader().LoadFromFile(c.Context, path)
	if err != nil {
		return types.WrapError(err, "invalid configuration "+path)
	}

	_, _ = fmt.Fprintf(c.App.Writer, "%s: %s %s is valid\n", path, cfg.Name, cfg.Version)
	return nil
}
