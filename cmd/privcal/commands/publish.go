package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"privcal/internal/domain"
	"privcal/internal/protocol/envelope"
	messagesvc "privcal/internal/services/message"
)

func publishCmd() *cobra.Command {
	var (
		identifier   string
		title        string
		start        string
		end          string
		content      string
		participants []string
		public       bool
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a calendar event (private unless --public)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" || start == "" {
				return fmt.Errorf("--title and --start are required")
			}
			kind, tags, err := eventTags(identifier, title, start, end)
			if err != nil {
				return err
			}
			for _, p := range participants {
				tags = append(tags, domain.Tag{"p", p})
			}
			s, err := unlock(cmd)
			if err != nil {
				return err
			}
			if public {
				res, err := appCtx.Messages.PublishPublic(cmd.Context(), s,
					domain.Event{Kind: kind, Tags: tags, Content: content})
				if err != nil {
					return err
				}
				fmt.Printf("Published %s to %d relay(s).\n", res.EventID, len(res.Accepted))
				return nil
			}
			report, err := appCtx.Messages.SendPrivate(cmd.Context(), s,
				domain.Rumor{Kind: kind, Tags: tags, Content: content})
			printReport(report)
			return err
		},
	}
	cmd.Flags().StringVar(&identifier, "id", "", "event identifier (d tag); random when empty")
	cmd.Flags().StringVar(&title, "title", "", "event title")
	cmd.Flags().StringVar(&start, "start", "", "YYYY-MM-DD for a date event, RFC 3339 for a time event")
	cmd.Flags().StringVar(&end, "end", "", "end, same format as --start")
	cmd.Flags().StringVar(&content, "content", "", "description")
	cmd.Flags().StringSliceVar(&participants, "p", nil, "participant pubkey, repeatable")
	cmd.Flags().BoolVar(&public, "public", false, "publish unencrypted")
	return cmd
}

// eventTags picks the date or time event kind from the shape of start.
func eventTags(identifier, title, start, end string) (int, domain.Tags, error) {
	if identifier == "" {
		identifier = uuid.NewString()
	}
	tags := domain.Tags{{"d", identifier}, {"title", title}}
	if _, err := time.Parse(time.DateOnly, start); err == nil {
		tags = append(tags, domain.Tag{"start", start})
		if end != "" {
			if _, err := time.Parse(time.DateOnly, end); err != nil {
				return 0, nil, fmt.Errorf("--end: %w", err)
			}
			tags = append(tags, domain.Tag{"end", end})
		}
		return domain.KindDateEvent, tags, nil
	}
	st, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return 0, nil, fmt.Errorf("--start: %w", err)
	}
	tags = append(tags, domain.Tag{"start", strconv.FormatInt(st.Unix(), 10)})
	if end != "" {
		et, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return 0, nil, fmt.Errorf("--end: %w", err)
		}
		if et.Before(st) {
			return 0, nil, errors.New("--end is before --start")
		}
		tags = append(tags, domain.Tag{"end", strconv.FormatInt(et.Unix(), 10)})
	}
	return domain.KindTimeEvent, tags, nil
}

func rsvpCmd() *cobra.Command {
	var (
		coordinate string
		status     string
		note       string
	)
	cmd := &cobra.Command{
		Use:   "rsvp",
		Short: "Answer a calendar event privately",
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := envelope.NewRSVP(coordinate, status)
			if err != nil {
				return err
			}
			partial.Content = note
			s, err := unlock(cmd)
			if err != nil {
				return err
			}
			report, err := appCtx.Messages.SendPrivate(cmd.Context(), s, partial)
			printReport(report)
			return err
		},
	}
	cmd.Flags().StringVar(&coordinate, "a", "", "event coordinate <kind>:<pubkey>:<d>")
	cmd.Flags().StringVar(&status, "status", envelope.StatusAccepted, "accepted, declined or tentative")
	cmd.Flags().StringVar(&note, "note", "", "free-text note")
	_ = cmd.MarkFlagRequired("a")
	return cmd
}

func printReport(r messagesvc.FanoutReport) {
	if r.RumorID == "" {
		return
	}
	fmt.Printf("Event %s: delivered to %d recipient(s), %d failed.\n", r.RumorID, r.Successful, r.Failed)
	for _, d := range r.Deliveries {
		if d.Err != nil {
			fmt.Printf("  %s: %v\n", fingerprint(d.Recipient), d.Err)
		}
	}
}
