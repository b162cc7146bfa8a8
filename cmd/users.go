package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hollowdong/chatbridge/internal/store"
)

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List known bridge users and their account links",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := store.OpenUserStore(dataDir)
			if err != nil {
				return fmt.Errorf("open user store: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPLATFORM\tORIGIN\tDISPLAY\tREF")
			for _, u := range users.List() {
				ref := "-"
				if u.Linked() {
					ref = u.RefID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Platform.Code(), u.OriginID, u.DisplayText, ref)
			}
			return w.Flush()
		},
	}
}
