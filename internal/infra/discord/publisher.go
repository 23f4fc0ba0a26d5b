/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kentakayama/role-verifier/internal/domain/model"
)

const (
	colorRed     = 0xED4245
	colorOrange  = 0xE67E22
	colorGreen   = 0x57F287
	colorGrey    = 0x95A5A6
	colorBlurple = 0x5865F2
)

// AuditPublisher posts audit events to the operator log channel.
type AuditPublisher struct {
	client    *Client
	channelID string
}

func NewAuditPublisher(client *Client, channelID string) (*AuditPublisher, error) {
	if client == nil {
		return nil, errors.New("discord client is required")
	}
	if channelID == "" {
		return nil, errors.New("log channel ID is required")
	}
	return &AuditPublisher{client: client, channelID: channelID}, nil
}

func (p *AuditPublisher) Publish(ctx context.Context, ev model.AuditEvent) error {
	if _, err := p.client.session.ChannelMessageSendEmbed(p.channelID, auditEmbed(ev), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("post audit event %s: %w", ev.ID, err)
	}
	return nil
}

func auditEmbed(ev model.AuditEvent) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: ev.Description,
		Color:       severityColor(ev.Severity),
		Timestamp:   ev.OccurredAt.Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: ev.ID.String()},
	}
	for _, f := range ev.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  fieldValue(f),
			Inline: f.Inline,
		})
	}
	return embed
}

func fieldValue(f model.AuditField) string {
	v := f.Value
	if v == "" {
		v = "-"
	}
	if f.Identity {
		v = "<@" + v + ">"
	}
	if f.Sensitive {
		v = "||" + v + "||"
	}
	return v
}

func severityColor(s model.Severity) int {
	switch s {
	case model.SeverityBlock:
		return colorRed
	case model.SeverityWarn:
		return colorOrange
	case model.SeverityInfo:
		return colorGreen
	default:
		return colorGrey
	}
}
