package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"readshift/internal/account"
	"readshift/pkg/domain"
)

func (r *runner) registerCmd() *cobra.Command {
	var reg domain.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if reg.Password, err = r.password(reg.Password, "Password"); err != nil {
				return err
			}
			user, err := r.app.Account.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			r.printf("Registered %s <%s>. Check your inbox to verify your email, then login.\n", user.FullName(), user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address")
	cmd.Flags().StringVar(&reg.Password, "password", "", "password (prompted when empty)")
	return cmd
}

func (r *runner) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login and store the session tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if email == "" {
				if email, err = r.prompt.Input("Email", ""); err != nil {
					return err
				}
			}
			if password, err = r.password(password, "Password"); err != nil {
				return err
			}
			user, err := r.app.Account.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			r.printf("Logged in as %s.\n", displayName(user))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	return cmd
}

func (r *runner) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.app.Account.Logout(cmd.Context()); err != nil {
				return err
			}
			r.println("Logged out.")
			return nil
		},
	}
}

func (r *runner) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := r.app.Account.Me(cmd.Context())
			if err != nil {
				return err
			}
			r.printf("%s <%s>\n", displayName(user), user.Email)
			verified := "no"
			if user.IsVerified {
				verified = "yes"
			}
			r.printf("Verified: %s\n", verified)
			if user.OAuthProvider != "" {
				r.printf("Signed in with: %s\n", user.OAuthProvider)
			}
			return nil
		},
	}
}

func (r *runner) profileCmd() *cobra.Command {
	var p domain.Profile
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update reading preferences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if p != (domain.Profile{}) {
				updated, err := r.app.Account.UpdateProfile(ctx, p)
				if err != nil {
					return err
				}
				r.println("Profile updated.")
				r.printProfile(updated)
				return nil
			}
			user, err := r.app.Account.Me(ctx)
			if err != nil {
				return err
			}
			if user.Profile == nil {
				r.println("No profile set.")
				return nil
			}
			r.printProfile(*user.Profile)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.PreferredTone, "tone", "", "preferred tone")
	cmd.Flags().StringVar(&p.PreferredPerson, "person", "", "preferred person")
	cmd.Flags().StringVar(&p.ReadingGoal, "goal", "", "reading goal")
	cmd.Flags().StringVar(&p.Role, "role", "", "role")
	cmd.Flags().StringVar(&p.LearningStyle, "learning-style", "", "learning style")
	return cmd
}

func (r *runner) printProfile(p domain.Profile) {
	r.printf("Tone: %s\nPerson: %s\nGoal: %s\nRole: %s\nLearning style: %s\n",
		orNone(p.PreferredTone), orNone(p.PreferredPerson), orNone(p.ReadingGoal), orNone(p.Role), orNone(p.LearningStyle))
}

func (r *runner) verifyEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-email <token|link>",
		Short: "Verify an email address with the token or link from the email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := args[0]
			if strings.Contains(arg, "://") {
				res, err := r.app.Account.HandleCallbackURL(cmd.Context(), arg)
				if err != nil {
					return err
				}
				r.println(messageOr(res.Result.Message(), "Email verified."))
				return nil
			}
			res, err := r.app.Account.VerifyEmail(cmd.Context(), arg)
			if err != nil {
				return err
			}
			r.println(messageOr(res.Message(), "Email verified."))
			return nil
		},
	}
}

func (r *runner) sendVerificationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-verification",
		Short: "Send a new verification email to the logged in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := r.app.Account.SendVerification(cmd.Context())
			if err != nil {
				return err
			}
			r.println(messageOr(res.Message(), "Verification email sent."))
			return nil
		},
	}
}

func (r *runner) resetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Request a password reset email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := r.app.Account.RequestPasswordReset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			r.println(messageOr(res.Message(), "If the account exists, a reset link is on its way."))
			return nil
		},
	}
}

func (r *runner) oauthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Login through an OAuth provider",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "url [provider]",
		Short: "Print the provider authorization URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := account.DefaultProvider
			if len(args) == 1 {
				provider = args[0]
			}
			start, err := r.app.Account.OAuthURL(cmd.Context(), provider)
			if err != nil {
				return err
			}
			r.println("Open this URL in your browser, then run `readshift oauth callback <redirect-url>`:")
			r.println(start.AuthorizationURL)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "callback <redirect-url>",
		Short: "Finish an OAuth login with the URL the browser was sent back to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := r.app.Account.HandleCallbackURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Kind == account.CallbackVerifyEmail {
				r.println(messageOr(res.Result.Message(), "Email verified."))
				return nil
			}
			r.printf("Logged in as %s.\n", displayName(res.User))
			return nil
		},
	})
	return cmd
}

func (r *runner) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and backend status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := r.app.Account.Status(cmd.Context())
			r.printf("Session: %s\nToken: %s\nBackend: %s (%s)\n", s.Login, s.TokenPreview, s.Backend, r.app.Client.BaseURL())
			if pending, err := r.app.Outbox.Pending(cmd.Context()); err == nil && len(pending) > 0 {
				r.printf("Pending highlight changes: %d (run `readshift sync`)\n", len(pending))
			}
			return nil
		},
	}
}

func displayName(u domain.User) string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}

func messageOr(msg, def string) string {
	if msg != "" {
		return msg
	}
	return def
}
