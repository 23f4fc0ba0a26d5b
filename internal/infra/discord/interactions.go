/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package discord

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kentakayama/role-verifier/internal/domain"
	"github.com/kentakayama/role-verifier/internal/verification"
)

const (
	replyAlreadyVerified = "You are already verified!"
	replyLinkSent        = "I have sent you a verification link via DM."
	replyDMFailed        = "I couldn't DM you. Please enable your DMs for this server and try again."
	replyFailed          = "Something went wrong. Please try again later."
)

// Issuer starts a verification for a button press.
type Issuer interface {
	Issue(ctx context.Context, identityID, communityID string) (*verification.Issued, error)
}

// Register installs the gateway handlers: the panel check on ready and the
// verify button. It must run before Open.
func (c *Client) Register(issuer Issuer, timeout time.Duration) {
	c.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		c.logger.Printf("Logged in as %s.", r.User.String())
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			posted, err := c.EnsurePanel(ctx, c.cfg.EmbedChannelID)
			if err != nil {
				c.logger.Printf("failed to deploy verification panel: %v", err)
				return
			}
			if posted {
				c.logger.Printf("Verification panel posted to %s.", c.cfg.EmbedChannelID)
			}
		}()
	})

	c.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionMessageComponent || i.MessageComponentData().CustomID != VerifyButtonID {
			return
		}
		c.handleVerify(s, i, issuer, timeout)
	})
}

func (c *Client) handleVerify(s *discordgo.Session, i *discordgo.InteractionCreate, issuer Issuer, timeout time.Duration) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		c.logger.Printf("failed to acknowledge interaction %s: %v", i.ID, err)
		return
	}

	identityID := interactionUser(i.Interaction)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var reply string
	if identityID == "" || i.GuildID == "" {
		reply = replyFailed
	} else {
		_, err = issuer.Issue(ctx, identityID, i.GuildID)
		if err != nil && !errors.Is(err, domain.ErrAlreadyVerified) {
			c.logger.Printf("issue for %s failed: %v", identityID, err)
		}
		reply = issueReply(err)
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply}); err != nil {
		c.logger.Printf("failed to answer interaction %s: %v", i.ID, err)
	}
}

func issueReply(err error) string {
	switch {
	case err == nil:
		return replyLinkSent
	case errors.Is(err, domain.ErrAlreadyVerified):
		return replyAlreadyVerified
	case errors.Is(err, domain.ErrDirectMessageFailed):
		return replyDMFailed
	default:
		return replyFailed
	}
}

func interactionUser(i *discordgo.Interaction) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	default:
		return ""
	}
}
