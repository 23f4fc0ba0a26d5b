/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/kentakayama/role-verifier/internal/util"
)

const (
	// VerifyButtonID is the custom id of the panel's button.
	VerifyButtonID = "verify_btn"

	panelScanDepth = 5
)

// EnsurePanel posts the verification panel to channelID unless one of the
// latest messages already is one. It reports whether a panel was posted.
func (c *Client) EnsurePanel(ctx context.Context, channelID string) (bool, error) {
	msgs, err := c.session.ChannelMessages(channelID, panelScanDepth, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("read channel %s: %w", channelID, err)
	}

	botID := ""
	if c.session.State != nil && c.session.State.User != nil {
		botID = c.session.State.User.ID
	}
	if hasPanel(msgs, botID) {
		return false, nil
	}

	if _, err := c.session.ChannelMessageSendComplex(channelID, panelMessage(), discordgo.WithContext(ctx)); err != nil {
		return false, fmt.Errorf("post panel to %s: %w", channelID, err)
	}
	return true, nil
}

func panelMessage() *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Server Verification",
			Description: "Please click the button below to verify your account and gain access to the server.",
			Color:       colorBlurple,
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Verify Now",
					Style:    discordgo.PrimaryButton,
					CustomID: VerifyButtonID,
				},
			}},
		},
	}
}

// hasPanel reports whether any message authored by botID carries the verify button.
func hasPanel(msgs []*discordgo.Message, botID string) bool {
	for _, m := range msgs {
		if m == nil || m.Author == nil || m.Author.ID != botID {
			continue
		}
		if customIDs(m.Components).Has(VerifyButtonID) {
			return true
		}
	}
	return false
}

func customIDs(components []discordgo.MessageComponent) util.Set[string] {
	ids := util.NewSet[string]()
	var walk func([]discordgo.MessageComponent)
	walk = func(cs []discordgo.MessageComponent) {
		for _, comp := range cs {
			switch v := comp.(type) {
			case *discordgo.ActionsRow:
				walk(v.Components)
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.Button:
				ids.Add(v.CustomID)
			case discordgo.Button:
				ids.Add(v.CustomID)
			}
		}
	}
	walk(components)
	return ids
}
