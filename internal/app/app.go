// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package app assembles the content core from a persistence gateway and
// its collaborators. The boundary layer embedding quillpress holds a Core
// and calls its managers.
package app

import (
	"log/slog"
	"time"

	"quillpress/internal/identity"
	"quillpress/internal/publishing"
	"quillpress/internal/store"
	"quillpress/internal/taxonomy"
)

// Deps are the collaborators of a Core. Nil optional fields fall back to
// the package defaults.
type Deps struct {
	Gateway store.Gateway
	Signer  identity.TokenSigner

	Hasher    identity.Hasher
	Revoker   identity.Revoker
	Throttle  *identity.Throttle
	TreeCache taxonomy.TreeCache
	Clock     identity.Clock
	TokenTTL  time.Duration
	Logger    *slog.Logger
}

// Core groups the managers sharing one gateway.
type Core struct {
	Identity   *identity.Manager
	Categories *taxonomy.Manager
	Posts      *publishing.Manager
	Sweeper    *publishing.Sweeper
}

// New wires a Core. Post placement changes invalidate the category views
// through the taxonomy manager.
func New(d Deps) *Core {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}

	idOpts := []identity.Option{
		identity.WithClock(clock),
		identity.WithLogger(log.With("component", "identity")),
	}
	if d.Hasher != nil {
		idOpts = append(idOpts, identity.WithHasher(d.Hasher))
	}
	if d.Revoker != nil {
		idOpts = append(idOpts, identity.WithRevoker(d.Revoker))
	}
	if d.Throttle != nil {
		idOpts = append(idOpts, identity.WithThrottle(d.Throttle))
	}
	if d.TokenTTL > 0 {
		idOpts = append(idOpts, identity.WithTokenTTL(d.TokenTTL))
	}

	taxOpts := []taxonomy.Option{
		taxonomy.WithClock(clock),
		taxonomy.WithLogger(log.With("component", "taxonomy")),
	}
	if d.TreeCache != nil {
		taxOpts = append(taxOpts, taxonomy.WithTreeCache(d.TreeCache))
	}
	cats := taxonomy.NewManager(d.Gateway, taxOpts...)

	posts := publishing.NewManager(d.Gateway,
		publishing.WithClock(clock),
		publishing.WithInvalidator(cats),
		publishing.WithLogger(log.With("component", "publishing")),
	)

	return &Core{
		Identity:   identity.NewManager(d.Gateway, d.Signer, idOpts...),
		Categories: cats,
		Posts:      posts,
		Sweeper:    publishing.NewSweeper(posts),
	}
}
