package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/plagcheck-client/pkg/client"
	"github.com/Sternrassler/plagcheck-client/pkg/metrics"
	"github.com/Sternrassler/plagcheck-client/pkg/pagination"
	"github.com/Sternrassler/plagcheck-client/pkg/session"
)

// parseParams turns repeated k=v flags into query parameters.
func parseParams(pairs []string) (url.Values, error) {
	params := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", pair)
		}
		params.Add(key, value)
	}
	return params, nil
}

func (a *app) printResponse(resp *client.Response) error {
	_, err := a.stdout.Write(resp.Data)
	if err == nil && len(resp.Data) > 0 && resp.Data[len(resp.Data)-1] != '\n' {
		_, err = fmt.Fprintln(a.stdout)
	}
	return err
}

func (a *app) printStats() error {
	samples, err := metrics.Counters(metrics.Gatherer)
	if err != nil {
		return err
	}
	for _, s := range samples {
		fmt.Fprintf(a.stderr, "%s %g\n", s.Name, s.Value)
	}
	return nil
}

func getCmd(a *app) *cobra.Command {
	var (
		params     []string
		skipCache  bool
		repeat     int
		concurrent bool
		stats      bool
	)

	cmd := &cobra.Command{
		Use:   "get PATH",
		Short: "GET a resource through the cache",
		Long:  "GET a resource through the cache. With --repeat the call is issued several times, sequentially or concurrently, and served from the cache or a shared in-flight request after the first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseParams(params)
			if err != nil {
				return err
			}
			if repeat < 1 {
				repeat = 1
			}
			opts := &client.RequestOptions{Params: query, SkipCache: skipCache}

			responses := make([]*client.Response, repeat)
			errs := make([]error, repeat)
			if concurrent {
				var wg sync.WaitGroup
				for i := range repeat {
					wg.Add(1)
					go func() {
						defer wg.Done()
						responses[i], errs[i] = a.client.Get(cmd.Context(), args[0], opts)
					}()
				}
				wg.Wait()
			} else {
				for i := range repeat {
					responses[i], errs[i] = a.client.Get(cmd.Context(), args[0], opts)
				}
			}

			if err := errors.Join(errs...); err != nil {
				return err
			}
			if err := a.printResponse(responses[0]); err != nil {
				return err
			}
			if stats {
				return a.printStats()
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter key=value (repeatable)")
	cmd.Flags().BoolVar(&skipCache, "skip-cache", false, "bypass the cache read; the response is still stored")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "issue the request N times")
	cmd.Flags().BoolVar(&concurrent, "concurrent", false, "issue repeated requests concurrently")
	cmd.Flags().BoolVar(&stats, "stats", false, "print client counters to stderr")
	return cmd
}

// requestBody builds the payload from --data or --field/--file flags.
func requestBody(data string, fields, files []string) (client.Body, error) {
	if data != "" && (len(fields) > 0 || len(files) > 0) {
		return client.Body{}, fmt.Errorf("--data cannot be combined with --field or --file")
	}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return client.Body{}, fmt.Errorf("--data is not valid JSON")
		}
		return client.Body{Data: []byte(data), ContentType: "application/json"}, nil
	}
	if len(fields) == 0 && len(files) == 0 {
		return client.NoBody, nil
	}

	form := make(map[string]string, len(fields))
	for _, pair := range fields {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return client.Body{}, fmt.Errorf("invalid field %q (want key=value)", pair)
		}
		form[key] = value
	}

	parts := make([]client.File, 0, len(files))
	for _, pair := range files {
		field, path, ok := strings.Cut(pair, "=")
		if !ok || field == "" || path == "" {
			return client.Body{}, fmt.Errorf("invalid file %q (want field=path)", pair)
		}
		f, err := os.Open(path)
		if err != nil {
			return client.Body{}, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		parts = append(parts, client.File{Field: field, Filename: filepath.Base(path), Content: f})
	}
	return client.MultipartBody(form, parts...)
}

func writeCmd(a *app, method string) *cobra.Command {
	var (
		data   string
		fields []string
		files  []string
	)

	cmd := &cobra.Command{
		Use:   method + " PATH",
		Short: strings.ToUpper(method) + " to a resource; invalidates cached reads it affects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := requestBody(data, fields, files)
			if err != nil {
				return err
			}

			var resp *client.Response
			switch method {
			case "post":
				resp, err = a.client.Post(cmd.Context(), args[0], body, nil)
			case "put":
				resp, err = a.client.Put(cmd.Context(), args[0], body, nil)
			default:
				resp, err = a.client.Patch(cmd.Context(), args[0], body, nil)
			}
			if err != nil {
				return err
			}
			return a.printResponse(resp)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "multipart form field key=value (repeatable)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "multipart file field=path (repeatable)")
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PATH",
		Short: "DELETE a resource; invalidates cached reads it affects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Delete(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			return a.printResponse(resp)
		},
	}
}

func pagesCmd(a *app) *cobra.Command {
	var (
		params      []string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "pages PATH",
		Short: "Fetch every page of a list endpoint and print them as a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseParams(params)
			if err != nil {
				return err
			}

			cfg := pagination.DefaultConfig()
			if concurrency > 0 {
				cfg.MaxConcurrency = concurrency
			}
			fetcher := pagination.NewBatchFetcher(pagination.NewClientPages(a.client, query), cfg)

			results, err := fetcher.FetchAllPages(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			pages := make([]json.RawMessage, 0, len(results))
			for _, data := range pagination.Ordered(results) {
				pages = append(pages, json.RawMessage(data))
			}
			out, err := json.Marshal(pages)
			if err != nil {
				return fmt.Errorf("encode pages: %w", err)
			}
			return a.printResponse(&client.Response{Data: out})
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter key=value (repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum pages fetched in parallel")
	return cmd
}

func cacheCmd(a *app) *cobra.Command {
	cacheRoot := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache",
	}

	cacheRoot.AddCommand(&cobra.Command{
		Use:   "clear [PREFIX...]",
		Short: "Remove cached entries under the given path prefixes, or all entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.ClearCache(cmd.Context(), args...)
		},
	})

	cacheRoot.AddCommand(&cobra.Command{
		Use:   "size",
		Short: "Print the number of stored entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(a.stdout, a.client.Cache().Len(cmd.Context()))
			return err
		},
	})

	return cacheRoot
}

// loginResponse is the body returned by POST /auth/login.
type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    any    `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	} `json:"user"`
}

func loginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := client.JSONBody(map[string]string{"email": email, "password": password})
			if err != nil {
				return err
			}
			resp, err := a.client.Post(cmd.Context(), "/auth/login", body, nil)
			if err != nil {
				return err
			}

			var lr loginResponse
			if err := resp.JSON(&lr); err != nil {
				return err
			}
			if lr.Token == "" {
				return fmt.Errorf("login response carried no token")
			}

			sess := &session.Session{
				Token: lr.Token,
				User: session.User{
					Email: lr.User.Email,
					Name:  lr.User.Name,
					Role:  lr.User.Role,
				},
			}
			if lr.User.ID != nil {
				sess.User.ID = fmt.Sprint(lr.User.ID)
			}
			if err := a.sessions.Save(sess); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "signed in as %s\n", sess.User.Email)
			return err
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func sessionCmd(a *app) *cobra.Command {
	sessionRoot := &cobra.Command{
		Use:   "session",
		Short: "Manage the locally stored session",
	}

	sessionRoot.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.sessions.Load()
			if errors.Is(err, session.ErrNoSession) {
				_, err = fmt.Fprintln(a.stdout, "not signed in")
				return err
			}
			if err != nil {
				return err
			}

			out := map[string]any{
				"user":     sess.User,
				"saved_at": sess.SavedAt,
				"expired":  sess.Expired(time.Now()),
			}
			if exp, ok := sess.ExpiresAt(); ok {
				out["expires_at"] = exp
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("encode session: %w", err)
			}
			return a.printResponse(&client.Response{Data: data})
		},
	})

	var token, email, name, role string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store a session token obtained elsewhere",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sessions.Save(&session.Session{
				Token: token,
				User:  session.User{Email: email, Name: name, Role: role},
			})
		},
	}
	setCmd.Flags().StringVar(&token, "token", "", "bearer token")
	setCmd.Flags().StringVar(&email, "email", "", "account email")
	setCmd.Flags().StringVar(&name, "name", "", "display name")
	setCmd.Flags().StringVar(&role, "role", "", "account role")
	_ = setCmd.MarkFlagRequired("token")
	sessionRoot.AddCommand(setCmd)

	sessionRoot.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session and every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sessions.Clear(); err != nil {
				return err
			}
			return a.client.ClearCache(cmd.Context())
		},
	})

	return sessionRoot
}
