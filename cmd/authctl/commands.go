package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/password"
	"github.com/aussiebroadwan/shield/internal/auth/store"
)

var errUsage = errors.New("usage")

const usage = `usage: authctl <command> [flags] [args]

commands:
  create -email E [-username U] [-group G] [-inactive]   create a user, prompting for the password
  activate USER                                          mark a user active
  deactivate USER                                        mark a user inactive
  ban [-message M] USER                                  ban a user and end their sessions
  unban USER                                             lift a ban
  password [-force-reset] USER                           set a new password, or only flag a reset
  addgroup USER GROUP...                                 add group memberships
  removegroup USER GROUP...                              remove group memberships
  list-groups [USER]                                     list configured groups, or a user's groups
  totp USER                                              enroll an authenticator app, printing its otpauth URL
  users                                                  list users

USER is an email address, a username or a user id.
`

type cli struct {
	m            *authn.Manager
	out          io.Writer
	readPassword func(prompt string) (string, error)
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		return c.create(ctx, rest)
	case "activate", "deactivate", "unban":
		return c.simple(ctx, cmd, rest)
	case "ban":
		return c.ban(ctx, rest)
	case "password":
		return c.password(ctx, rest)
	case "addgroup", "removegroup":
		return c.groups(ctx, cmd, rest)
	case "list-groups":
		return c.listGroups(ctx, rest)
	case "totp":
		return c.enrollTOTP(ctx, rest)
	case "users":
		return c.users(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return nil
	default:
		fmt.Fprint(c.out, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// lookup resolves an email, username or id.
func (c *cli) lookup(ctx context.Context, ref string) (domain.User, error) {
	users := c.m.Users()
	u, err := users.Find(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		u, err = users.Get(ctx, ref)
	}
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("no user %q", ref)
	}
	return u, err
}

func (c *cli) oneUser(ctx context.Context, fs *flag.FlagSet, args []string) (domain.User, error) {
	if err := fs.Parse(args); err != nil {
		return domain.User{}, err
	}
	if fs.NArg() != 1 {
		return domain.User{}, fmt.Errorf("%w: %s takes exactly one user", errUsage, fs.Name())
	}
	return c.lookup(ctx, fs.Arg(0))
}

func (c *cli) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(c.out)
	email := fs.String("email", "", "email address")
	username := fs.String("username", "", "username")
	group := fs.String("group", "", "extra group to join")
	inactive := fs.Bool("inactive", false, "leave the account inactive")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw, err := c.readPassword("Password: ")
	if err != nil {
		return err
	}

	users := c.m.Users()
	user, err := users.Register(ctx, authn.NewUser{Email: *email, Username: *username, Password: pw})
	var weak *password.WeakPasswordError
	if errors.As(err, &weak) {
		return fmt.Errorf("weak password (%s): %s", weak.Kind, weak.Suggestion)
	}
	if err != nil {
		return err
	}

	switch {
	case *inactive && user.Active:
		err = users.Deactivate(ctx, user.ID)
	case !*inactive && !user.Active:
		err = users.Activate(ctx, user.ID)
	}
	if err != nil {
		return err
	}

	if *group != "" {
		if err := c.m.Authorizer().For(user.ID).AddGroup(ctx, *group); err != nil {
			return err
		}
	}

	fmt.Fprintln(c.out, user.ID)
	return nil
}

func (c *cli) simple(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(c.out)
	user, err := c.oneUser(ctx, fs, args)
	if err != nil {
		return err
	}

	users := c.m.Users()
	switch cmd {
	case "activate":
		return users.Activate(ctx, user.ID)
	case "deactivate":
		return users.Deactivate(ctx, user.ID)
	default:
		return users.Unban(ctx, user.ID)
	}
}

func (c *cli) ban(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ban", flag.ContinueOnError)
	fs.SetOutput(c.out)
	message := fs.String("message", "", "shown to the user on login")
	user, err := c.oneUser(ctx, fs, args)
	if err != nil {
		return err
	}
	return c.m.Users().Ban(ctx, user.ID, *message)
}

func (c *cli) password(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("password", flag.ContinueOnError)
	fs.SetOutput(c.out)
	forceReset := fs.Bool("force-reset", false, "only require a reset on next request")
	user, err := c.oneUser(ctx, fs, args)
	if err != nil {
		return err
	}

	if *forceReset {
		return c.m.Users().ForcePasswordReset(ctx, user.ID)
	}

	pw, err := c.readPassword("New password: ")
	if err != nil {
		return err
	}
	err = c.m.Users().SetPassword(ctx, &user, pw)
	var weak *password.WeakPasswordError
	if errors.As(err, &weak) {
		return fmt.Errorf("weak password (%s): %s", weak.Kind, weak.Suggestion)
	}
	return err
}

func (c *cli) groups(ctx context.Context, cmd string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: %s USER GROUP...", errUsage, cmd)
	}
	user, err := c.lookup(ctx, args[0])
	if err != nil {
		return err
	}

	subject := c.m.Authorizer().For(user.ID)
	if cmd == "addgroup" {
		return subject.AddGroup(ctx, args[1:]...)
	}
	return subject.RemoveGroup(ctx, args[1:]...)
}

func (c *cli) listGroups(ctx context.Context, args []string) error {
	cfg := c.m.Authorizer().Config()

	if len(args) == 0 {
		w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		for _, name := range cfg.GroupNames() {
			marker := ""
			if name == cfg.DefaultGroup {
				marker = "(default)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, cfg.Groups[name].Title, marker)
		}
		return w.Flush()
	}

	user, err := c.lookup(ctx, args[0])
	if err != nil {
		return err
	}
	groups, err := c.m.Authorizer().For(user.ID).Groups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		fmt.Fprintln(c.out, g)
	}
	return nil
}

func (c *cli) enrollTOTP(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("totp", flag.ContinueOnError)
	fs.SetOutput(c.out)
	user, err := c.oneUser(ctx, fs, args)
	if err != nil {
		return err
	}
	enrollment, err := c.m.TOTP().Enroll(ctx, &user)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, enrollment.URL)
	return nil
}

func (c *cli) users(ctx context.Context) error {
	list, err := c.m.Users().List(ctx)
	if err != nil {
		return err
	}
	slices.SortFunc(list, func(a, b domain.User) int { return strings.Compare(a.ID, b.ID) })

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tUSERNAME\tACTIVE\tSTATUS")
	for _, u := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", u.ID, u.Email, u.Username, u.Active, u.Status)
	}
	return w.Flush()
}
