package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"techpost/internal/app"
	"techpost/internal/config"
	"techpost/internal/engage"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file after applying .env and environment
// overrides.
func loadConfig() (*config.Config, app.Defaults, error) {
	if err := app.LoadEnvFile(".env"); err != nil {
		return nil, app.Defaults{}, err
	}
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, app.Defaults{}, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, defaults, fmt.Errorf("reading config (run 'techpost config init' first?): %w", err)
	}
	app.ApplyEnv(cfg)
	return cfg, defaults, nil
}

// newApp reads the config and creates a TechPostApp. The caller must defer a.Close().
func newApp(cmd *cobra.Command, prompter *app.TerminalPrompter) (*app.TechPostApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var lp engage.LoginPrompter
	if prompter != nil {
		lp = prompter
	}
	a, err := app.NewTechPostApp(cmd.Context(), cfg, cmd.Name(), lp)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func parsePostID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid post id %q", s)
	}
	return id, nil
}

// runGated runs a like or comment and, when it was deferred, asks for a
// login on the terminal and replays it.
func runGated(cmd *cobra.Command, attempt func(context.Context, *app.TechPostApp) (engage.Result, error)) (engage.Result, error) {
	prompter := app.NewTerminalPrompter(os.Stdin, cmd.OutOrStdout())
	a, err := newApp(cmd, prompter)
	if err != nil {
		return engage.Result{}, err
	}
	defer a.Close()

	ctx := cmd.Context()
	res, err := attempt(ctx, a)
	if err != nil {
		return res, notice(err)
	}
	if res.Deferred {
		res, err = a.ResolveLogin(ctx, prompter, res.Reason)
		if err != nil {
			return res, notice(err)
		}
		// A replay can itself be deferred when the fresh session is rejected.
		if res.Deferred {
			return res, errors.New("login did not stick; try again")
		}
	}
	return res, nil
}

// notice turns expected failures into one-line messages.
func notice(err error) error {
	var authErr *engage.AuthError
	switch {
	case errors.Is(err, app.ErrCancelled):
		return errors.New("cancelled")
	case errors.As(err, &authErr):
		return errors.New(authErr.Error())
	case errors.Is(err, engage.ErrBusy):
		return errors.New("another request for this post is still in progress")
	}
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

var rootCmd = &cobra.Command{
	Use:          "techpost",
	Short:        "TechPost engagement client",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.LoadEnvFile(".env"); err != nil {
			return err
		}
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		app.ApplyEnv(cfg)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Fprintf(cmd.OutOrStdout(), "Base Dir: %s\n", defaults.BaseDir)
		fmt.Fprintf(cmd.OutOrStdout(), "API:      %s\n", cfg.API.BaseURL)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Fprintf(out, "Base Dir:   %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:    %s\n", cfg.LogDir)
		fmt.Fprintf(out, "API:        %s (timeout %s)\n", cfg.API.BaseURL, cfg.API.Timeout)
		fmt.Fprintf(out, "Session:    %s %s\n", cfg.Session.Type, cfg.Session.DataDir)
		fmt.Fprintf(out, "Encryption: %s\n", cfg.Encryption.Type)
		fmt.Fprintf(out, "Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Fprintf(out, "Preview:    %d comments\n", cfg.Comments.PreviewCount)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		prompter := app.NewTerminalPrompter(os.Stdin, cmd.OutOrStdout())
		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		name, err := prompter.ReadLine("Name: ")
		if err != nil {
			return err
		}
		email, err := prompter.ReadLine("Email: ")
		if err != nil {
			return err
		}
		password, err := prompter.ReadPassword("Password: ")
		if err != nil {
			return err
		}

		if err := a.Register(cmd.Context(), name, email, password); err != nil {
			return notice(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Registered. Run 'techpost login' to log in.")
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		prompter := app.NewTerminalPrompter(os.Stdin, cmd.OutOrStdout())
		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if id, ok := a.Identity(); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Already logged in as %s <%s>\n", id.Name, id.Email)
			return nil
		}

		email, password, err := prompter.Credentials(engage.PromptAnonymous)
		if err != nil {
			return err
		}
		if email == "" {
			return notice(app.ErrCancelled)
		}
		if _, err := a.Login(cmd.Context(), email, password); err != nil {
			return notice(err)
		}
		id, _ := a.Identity()
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", id.Name)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		id, ok := a.Identity()
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (id %d)\n", id.Name, id.Email, id.ID)
		return nil
	},
}

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List posts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		posts, err := a.Posts(cmd.Context())
		if err != nil {
			return notice(err)
		}
		if len(posts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No posts.")
			return nil
		}
		for _, p := range posts {
			fmt.Fprintf(cmd.OutOrStdout(), "#%-4d %-10s %s  ♥ %d  💬 %d  %s\n",
				p.ID, p.Category, formatTime(p.CreatedAt), p.LikesCount, p.CommentsCount, p.Title)
		}
		return nil
	},
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Read posts",
}

var postShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a post with its likes and comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		postID, err := parsePostID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.ShowPost(cmd.Context(), postID, all)
		if err != nil {
			return notice(err)
		}
		printSnapshot(cmd, snap)
		return nil
	},
}

func printSnapshot(cmd *cobra.Command, snap engage.PostSnapshot) {
	out := cmd.OutOrStdout()
	p := snap.Post
	fmt.Fprintf(out, "%s\n", p.Title)
	fmt.Fprintf(out, "%s · %s · %s\n\n", p.Category, p.Author.Name, formatTime(p.CreatedAt))
	if p.Content != "" {
		fmt.Fprintf(out, "%s\n\n", p.Content)
	}

	liked := ""
	if snap.IsLiked {
		liked = " (you like this)"
	}
	fmt.Fprintf(out, "♥ %d%s\n\n", p.LikesCount, liked)

	fmt.Fprintf(out, "Comments (%d)\n", snap.TotalComments)
	for _, c := range snap.Comments {
		fmt.Fprintf(out, "  %s · %s\n    %s\n", c.Author.Name, formatTime(c.CreatedAt), c.Content)
	}
	if snap.HiddenComments > 0 {
		fmt.Fprintf(out, "  … %d more (use --all)\n", snap.HiddenComments)
	}
}

var likeCmd = &cobra.Command{
	Use:   "like ID",
	Short: "Like or unlike a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		postID, err := parsePostID(args[0])
		if err != nil {
			return err
		}

		res, err := runGated(cmd, func(ctx context.Context, a *app.TechPostApp) (engage.Result, error) {
			return a.Like(ctx, postID)
		})
		if err != nil {
			return err
		}

		switch {
		case res.Satisfied:
			fmt.Fprintf(cmd.OutOrStdout(), "You already like post %d.\n", postID)
		case res.Like.Liked:
			fmt.Fprintf(cmd.OutOrStdout(), "Liked post %d (♥ %d)\n", postID, res.Like.LikesCount)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "Unliked post %d (♥ %d)\n", postID, res.Like.LikesCount)
		}
		return nil
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment ID TEXT...",
	Short: "Comment on a post",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		postID, err := parsePostID(args[0])
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")

		res, err := runGated(cmd, func(ctx context.Context, a *app.TechPostApp) (engage.Result, error) {
			return a.Comment(ctx, postID, text)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Comment #%d posted on post %d.\n", res.Comment.ID, postID)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent likes and comments sent from this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		actions, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No actions recorded.")
			return nil
		}

		for _, act := range actions {
			duration := ""
			if act.FinishedAt != nil {
				duration = act.FinishedAt.Sub(act.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d  %-8s  post %-4d  %s  %-8s  %s  %s\n",
				act.ID,
				act.Kind,
				act.PostID,
				act.StartedAt.Local().Format("2006-01-02 15:04:05"),
				act.Status,
				duration,
				act.Detail,
			)
		}
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export PATH",
	Short: "Copy the action journal to a new sqlite file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ExportHistory(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "History exported to %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	postCmd.AddCommand(postShowCmd)
	postShowCmd.Flags().Bool("all", false, "Show every comment instead of the preview")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of actions to show")
}
