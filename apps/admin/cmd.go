package main

import (
	"flag"
	"fmt"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/shule/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	usrSvc     *user.Service
	validate   *validator.Validate
	translator ut.Translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a database migration command (up, down, status, version...)")
	fmt.Println("  createsuperadmin -username USERNAME -email EMAIL - create a superadmin")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
}

// readPassword prompts for a password without echoing it.
func readPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createSuperadminCmd := flag.NewFlagSet("createsuperadmin", flag.ContinueOnError)
	createSuperadminUname := createSuperadminCmd.String("username", "", "The superadmin's username.")
	createSuperadminEmail := createSuperadminCmd.String("email", "", "The superadmin's email. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "createsuperadmin":
		if err := createSuperadminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createSuperadminUname == "" || *createSuperadminEmail == "" {
			createSuperadminCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			createSuperadminCmd.Usage()
			return errHelp
		}
		return cli.createSuperadmin(*createSuperadminUname, *createSuperadminEmail, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

// translate turns validation errors into a readable message.
func (cli *commandLine) translate(err error) error {
	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return err
	}
	msgs := make([]string, 0, len(valErrs))
	for _, vErr := range valErrs {
		msgs = append(msgs, vErr.Translate(cli.translator))
	}
	return errors.New(strings.Join(msgs, "; "))
}
