package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/threads/internal/client"
	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/ui"
)

func scopeArgs(args []string) model.Scope {
	return model.Scope{Type: args[0], ID: args[1]}
}

// listOptions reads the shared paging flags.
func listOptions(cmd *cobra.Command) client.ListOptions {
	var opts client.ListOptions
	opts.Page, _ = cmd.Flags().GetInt("page")
	opts.Items, _ = cmd.Flags().GetInt("items")
	if cmd.Flags().Lookup("depth") != nil {
		opts.Depth, _ = cmd.Flags().GetString("depth")
	}
	if cmd.Flags().Lookup("order") != nil {
		opts.Order, _ = cmd.Flags().GetString("order")
	}
	return opts
}

func addPagingFlags(cmd *cobra.Command) {
	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().Int("items", model.DefaultItemsPerPage, "items per page")
	cmd.Flags().Bool("bounds", false, "show nested-set bounds")
}

func boolFlag(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

var addCmd = &cobra.Command{
	Use:     "add <type> <id> <body...>",
	Short:   "Add a comment, optionally as a reply",
	GroupID: "comments",
	Args:    cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := model.NewComment{
			Body:     strings.Join(args[2:], " "),
			AuthorID: author,
		}
		if parent, _ := cmd.Flags().GetString("parent"); parent != "" {
			in.ParentID = &parent
		}
		c, err := threadsClient.AddComment(context.Background(), scopeArgs(args), in)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), c)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s %s\n", ui.RenderID(c.ID), ui.RenderMuted(c.Interval().String()))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <type> <id> <comment-id>",
	Short:   "Show one comment",
	GroupID: "comments",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := threadsClient.GetComment(context.Background(), scopeArgs(args), args[2])
		if err != nil {
			return err
		}
		return printComment(cmd.OutOrStdout(), c)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <type> <id> <comment-id>",
	Short:   "Delete a comment and all of its replies",
	GroupID: "comments",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := threadsClient.DeleteComment(context.Background(), scopeArgs(args), args[2])
		if err != nil {
			return err
		}
		return printRemoved(cmd, n)
	},
}

var destroyCmd = &cobra.Command{
	Use:     "destroy <type> <id>",
	Short:   "Delete every comment on a commentable",
	GroupID: "comments",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := threadsClient.DeleteForest(context.Background(), scopeArgs(args))
		if err != nil {
			return err
		}
		return printRemoved(cmd, n)
	},
}

func printRemoved(cmd *cobra.Command, n int) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]int{"removed": n})
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %d comment(s)\n", n)
	return err
}

var rootsCmd = &cobra.Command{
	Use:     "roots <type> <id>",
	Short:   "List top-level comments",
	GroupID: "views",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := threadsClient.RootComments(context.Background(), scopeArgs(args), listOptions(cmd))
		if err != nil {
			return err
		}
		return printPage(cmd.OutOrStdout(), page, false, boolFlag(cmd, "bounds"))
	},
}

var nestedCmd = &cobra.Command{
	Use:     "nested <type> <id>",
	Short:   "Show a page of threads with replies down to --depth",
	GroupID: "views",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := threadsClient.NestedComments(context.Background(), scopeArgs(args), listOptions(cmd))
		if err != nil {
			return err
		}
		return printPage(cmd.OutOrStdout(), page, true, boolFlag(cmd, "bounds"))
	},
}

var listCmd = &cobra.Command{
	Use:     "list <type> <id>",
	Short:   "List every comment by submission time",
	GroupID: "views",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := threadsClient.Comments(context.Background(), scopeArgs(args), listOptions(cmd))
		if err != nil {
			return err
		}
		return printPage(cmd.OutOrStdout(), page, false, boolFlag(cmd, "bounds"))
	},
}

var subtreeCmd = &cobra.Command{
	Use:     "subtree <type> <id> <comment-id>",
	Short:   "Show a comment and its replies",
	GroupID: "views",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := threadsClient.Subtree(context.Background(), scopeArgs(args), args[2], listOptions(cmd))
		if err != nil {
			return err
		}
		return printPage(cmd.OutOrStdout(), page, true, boolFlag(cmd, "bounds"))
	},
}

var ancestorsCmd = &cobra.Command{
	Use:     "ancestors <type> <id> <comment-id>",
	Short:   "List the comments a reply sits under, outermost first",
	GroupID: "views",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		anc, err := threadsClient.Ancestors(context.Background(), scopeArgs(args), args[2])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), anc)
		}
		if len(anc) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "no ancestors")
			return err
		}
		return ui.WriteTree(cmd.OutOrStdout(), anc, ui.Options{Width: ui.Width()})
	},
}

var byUserCmd = &cobra.Command{
	Use:     "by-user <user-id> [<type> <id>]",
	Short:   "List a user's comments, across all forests or in one",
	GroupID: "views",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 && len(args) != 3 {
			return fmt.Errorf("accepts <user-id> or <user-id> <type> <id>, received %d arg(s)", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var scope *model.Scope
		if len(args) == 3 {
			s := scopeArgs(args[1:])
			scope = &s
		}
		page, err := threadsClient.CommentsByUser(context.Background(), args[0], scope, listOptions(cmd))
		if err != nil {
			return err
		}
		return printPage(cmd.OutOrStdout(), page, false, boolFlag(cmd, "bounds"))
	},
}

var hasCmd = &cobra.Command{
	Use:     "has <type> <id>",
	Short:   "Report whether a commentable has comments",
	GroupID: "system",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		has, err := threadsClient.HasComments(context.Background(), scopeArgs(args))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]bool{"has_comments": has})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), has)
		return err
	},
}

var verifyCmd = &cobra.Command{
	Use:     "verify <type> <id>",
	Short:   "Check a forest's nested-set bounds",
	GroupID: "system",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := threadsClient.Verify(context.Background(), scopeArgs(args))
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else if res.Consistent {
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d comment(s)\n", res.Comments)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderWarn("inconsistent: "+res.Detail))
		}
		if !res.Consistent {
			return fmt.Errorf("forest %s/%s is inconsistent", args[0], args[1])
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := threadsClient.Health(context.Background())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), status)
		return err
	},
}

func init() {
	addCmd.Flags().String("parent", "", "reply to this comment id")
	addCmd.Flags().StringVar(&author, "author", defaultAuthor(), "author id")

	for _, cmd := range []*cobra.Command{rootsCmd, nestedCmd, listCmd, subtreeCmd, byUserCmd} {
		addPagingFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{rootsCmd, listCmd, byUserCmd} {
		cmd.Flags().String("order", "desc", "creation order (asc or desc)")
	}
	for _, cmd := range []*cobra.Command{nestedCmd, subtreeCmd} {
		cmd.Flags().String("depth", "all", `reply levels to include ("all" or a number)`)
	}
}
