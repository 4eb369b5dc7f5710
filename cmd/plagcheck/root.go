package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *app) {
	a := &app{stdout: stdout, stderr: stderr, envFile: ".env"}

	root := &cobra.Command{
		Use:           "plagcheck",
		Short:         "Client for the plagcheck thesis-checking backend",
		Long:          "plagcheck sends requests to the plagcheck backend through a response cache.\nGET responses are cached per path and parameters; writes invalidate the affected resources.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default plagcheck.yaml in . or the user config dir)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading PLAGCHECK_* variables")
	flags.String("base-url", "", "backend base URL")
	flags.Int("retries", 0, "attempts for idempotent requests (1 disables retries)")
	flags.String("cache-backend", "", "cache backend: memory or redis")
	flags.String("session-path", "", "session database file")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(getCmd(a))
	root.AddCommand(writeCmd(a, "post"))
	root.AddCommand(writeCmd(a, "put"))
	root.AddCommand(writeCmd(a, "patch"))
	root.AddCommand(deleteCmd(a))
	root.AddCommand(pagesCmd(a))
	root.AddCommand(cacheCmd(a))
	root.AddCommand(loginCmd(a))
	root.AddCommand(sessionCmd(a))

	return root, a
}
