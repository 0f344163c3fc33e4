package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sigecof/internal/crypto"
	"sigecof/internal/models"
	"sigecof/internal/repository"

	"github.com/spf13/cobra"
)

var (
	userPassword    string
	userDisplayName string
	userRole        string
	userMustChange  bool
	userInactive    bool

	resetPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		password, generated, err := passwordOrTemporary(userPassword)
		if err != nil {
			return err
		}
		user := &models.User{
			Username:           args[0],
			DisplayName:        userDisplayName,
			Role:               strings.ToLower(userRole),
			MustChangePassword: userMustChange || generated,
			Active:             !userInactive,
		}
		if err := a.users().CreateUser(cmd.Context(), user, password); err != nil {
			if errors.Is(err, repository.ErrUserAlreadyExists) {
				return fmt.Errorf("user %q already exists", user.Username)
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created user %q (id %d, role %s)\n", user.Username, user.ID, user.Role)
		if generated {
			fmt.Fprintf(cmd.OutOrStdout(), "Temporary password: %s\n", password)
		}
		return nil
	},
}

var userSetRoleCmd = &cobra.Command{
	Use:   "set-role <username> <role>",
	Short: "Assign a role to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		users := a.users()
		user, err := users.GetUserByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		role := strings.ToLower(args[1])
		if err := users.SetRole(cmd.Context(), user.ID, role); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %q now has role %s\n", user.Username, role)
		return nil
	},
}

var userResetPasswordCmd = &cobra.Command{
	Use:   "reset-password <username>",
	Short: "Set a temporary password and require a change on next login",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		users := a.users()
		user, err := users.GetUserByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		password, generated, err := passwordOrTemporary(resetPassword)
		if err != nil {
			return err
		}
		if err := users.SetPassword(cmd.Context(), user.ID, password, true); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Password for %q reset; a change is required on next login\n", user.Username)
		if generated {
			fmt.Fprintf(cmd.OutOrStdout(), "Temporary password: %s\n", password)
		}
		return nil
	},
}

var userSetActiveCmd = &cobra.Command{
	Use:   "set-active <username> <true|false>",
	Short: "Activate or deactivate a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		active, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid active flag %q: %w", args[1], err)
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		users := a.users()
		user, err := users.GetUserByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := users.SetActive(cmd.Context(), user.ID, active); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %q active=%t\n", user.Username, active)
		return nil
	},
}

// passwordOrTemporary returns the given password, or a random one when it
// is empty. generated reports which.
func passwordOrTemporary(password string) (string, bool, error) {
	if password != "" {
		return password, false, nil
	}
	tmp, err := crypto.RandomToken(12)
	if err != nil {
		return "", false, err
	}
	return tmp, true, nil
}

func init() {
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "initial password (random temporary password if empty)")
	userCreateCmd.Flags().StringVar(&userDisplayName, "display-name", "", "display name")
	userCreateCmd.Flags().StringVar(&userRole, "role", models.RolePending, "role tag")
	userCreateCmd.Flags().BoolVar(&userMustChange, "must-change-password", false, "require a password change on first login")
	userCreateCmd.Flags().BoolVar(&userInactive, "inactive", false, "create the account deactivated")

	userResetPasswordCmd.Flags().StringVar(&resetPassword, "password", "", "temporary password (random if empty)")

	userCmd.AddCommand(userCreateCmd, userSetRoleCmd, userResetPasswordCmd, userSetActiveCmd)
	rootCmd.AddCommand(userCmd)
}
