// Command authctl administers the auth database: migrations, admin accounts and roles.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/Skotchmaster/authsvc/internal/config"
	"github.com/Skotchmaster/authsvc/internal/db"
	"github.com/Skotchmaster/authsvc/internal/hash"
	"github.com/Skotchmaster/authsvc/internal/logging"
	"github.com/Skotchmaster/authsvc/internal/migrations"
	"github.com/Skotchmaster/authsvc/internal/repo"
	"github.com/Skotchmaster/authsvc/internal/service"
)

const usage = `usage: authctl <command> [flags]

commands:
  migrate       apply database migrations
  create-admin  create an activated account with the ADMIN role
  grant-role    add a role to a user
  revoke-role   remove a role from a user
  list-users    print all users
`

type app struct {
	cfg   config.Config
	repo  *repo.GormRepo
	users *service.UserService
	out   io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logging.IntoContext(ctx, logging.New(cfg.LogLevel, "authctl"))

	gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	rp := repo.NewGormRepo(gdb)

	a := &app{
		cfg:   cfg,
		repo:  rp,
		users: &service.UserService{Users: rp, Hasher: hash.NewBcrypt(cfg.BcryptCost)},
		out:   os.Stdout,
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "migrate":
		err = a.migrate(ctx)
	case "create-admin":
		err = a.createAdmin(ctx, args)
	case "grant-role":
		err = a.changeRole(ctx, args, true)
	case "revoke-role":
		err = a.changeRole(ctx, args, false)
	case "list-users":
		err = a.listUsers(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func (a *app) migrate(ctx context.Context) error {
	sqlDB, err := a.repo.DB.DB()
	if err != nil {
		return err
	}
	if err := migrations.Up(ctx, sqlDB, a.cfg.DBDriver); err != nil {
		return err
	}
	v, err := migrations.Version(ctx, sqlDB, a.cfg.DBDriver)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "database at version %d\n", v)
	return nil
}

func (a *app) createAdmin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	email := fs.String("email", "", "admin email (required)")
	login := fs.String("login", "", "admin login (required)")
	first := fs.String("first-name", "", "first name")
	last := fs.String("last-name", "", "last name")
	stdin := fs.Bool("password-stdin", false, "read the password from stdin instead of prompting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *login == "" {
		fs.Usage()
		return errors.New("email and login are required")
	}

	password, err := readPassword(*stdin)
	if err != nil {
		return err
	}

	view, err := a.users.CreateAdmin(ctx, service.RegisterInput{
		Email:     strings.TrimSpace(*email),
		Login:     strings.TrimSpace(*login),
		FirstName: *first,
		LastName:  *last,
		Password:  password,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created admin %s (%s)\n", view.Login, view.ID)
	return nil
}

func (a *app) changeRole(ctx context.Context, args []string, grant bool) error {
	name := "revoke-role"
	if grant {
		name = "grant-role"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	id := fs.String("id", "", "user id")
	login := fs.String("login", "", "user login, used when -id is empty")
	role := fs.String("role", "", "role name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *role == "" || (*id == "" && *login == "") {
		fs.Usage()
		return errors.New("role and one of id or login are required")
	}

	userID, err := a.resolveUser(ctx, *id, *login)
	if err != nil {
		return err
	}

	if grant {
		_, err = a.users.GrantRole(ctx, userID, *role)
	} else {
		_, err = a.users.RevokeRole(ctx, userID, *role)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s %s\n", name, userID, service.NormalizeRole(*role))
	return nil
}

func (a *app) resolveUser(ctx context.Context, id, login string) (uuid.UUID, error) {
	if id != "" {
		return uuid.Parse(id)
	}
	u, err := a.repo.FindUserByLogin(ctx, login)
	if err != nil {
		return uuid.Nil, fmt.Errorf("find %q: %w", login, err)
	}
	return u.ID, nil
}

func (a *app) listUsers(ctx context.Context) error {
	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLOGIN\tEMAIL\tACTIVATED\tROLES")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", u.ID, u.Login, u.Email, u.IsActivated, strings.Join(u.Roles, ","))
	}
	return w.Flush()
}

func readPassword(fromStdin bool) (string, error) {
	if fromStdin || !term.IsTerminal(int(os.Stdin.Fd())) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "repeat password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
