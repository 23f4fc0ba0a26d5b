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
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/kentakayama/role-verifier/internal/config"
	"github.com/kentakayama/role-verifier/internal/domain/model"
	"github.com/kentakayama/role-verifier/internal/util"
)

// Client is the chat-platform side of verification: role checks and grants,
// private messages, channel posts and button interactions.
type Client struct {
	session *discordgo.Session
	cfg     config.DiscordConfig
	logger  *log.Logger
}

func NewClient(cfg config.DiscordConfig, logger *log.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	s.ShouldRetryOnRateLimit = true

	return &Client{
		session: s,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Open connects to the gateway. Handlers must be registered before.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.session.Close()
}

// HasRole reports whether identityID holds roleID in communityID.
func (c *Client) HasRole(ctx context.Context, communityID, identityID, roleID string) (bool, error) {
	m, err := c.session.GuildMember(communityID, identityID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("fetch member %s: %w", identityID, err)
	}
	return util.SetOf(m.Roles...).Has(roleID), nil
}

// AddRole attaches roleID to identityID, failing if identityID has left communityID.
func (c *Client) AddRole(ctx context.Context, communityID, identityID, roleID string) error {
	if _, err := c.session.GuildMember(communityID, identityID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("fetch member %s: %w", identityID, err)
	}
	if err := c.session.GuildMemberRoleAdd(communityID, identityID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add role %s to %s: %w", roleID, identityID, err)
	}
	return nil
}

// SendDirect delivers msg in a private channel with identityID.
func (c *Client) SendDirect(ctx context.Context, identityID string, msg model.DirectMessage) error {
	ch, err := c.session.UserChannelCreate(identityID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open private channel with %s: %w", identityID, err)
	}
	if _, err := c.session.ChannelMessageSendComplex(ch.ID, directMessage(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send private message to %s: %w", identityID, err)
	}
	return nil
}

func directMessage(msg model.DirectMessage) *discordgo.MessageSend {
	send := &discordgo.MessageSend{Content: msg.Text}
	if msg.Title == "" && msg.Description == "" && msg.Link == "" {
		return send
	}
	desc := msg.Description
	if msg.Link != "" {
		desc = fmt.Sprintf("**[Verify Here](%s)**\n\n%s", msg.Link, msg.Description)
	}
	send.Embeds = []*discordgo.MessageEmbed{{
		Title:       msg.Title,
		Description: desc,
		URL:         msg.Link,
		Color:       colorBlurple,
	}}
	return send
}
