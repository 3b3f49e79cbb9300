package main

import (
	"context"
	"fmt"

	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

func (cli *commandLine) createSuperadmin(uname, email, pwd string) error {
	nu := user.NewUser{
		Username: uname,
		Email:    email,
		Password: pwd,
		Role:     access.RoleSuperadmin,
	}
	if err := nu.Validate(cli.validate); err != nil {
		return cli.translate(err)
	}

	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	fmt.Printf("superadmin %s created (id: %s)\n", usr.Username, usr.ID)
	return nil
}
