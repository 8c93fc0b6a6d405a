// Package app composes the mess feedback services into one Application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Stores, Options, wiring and lifecycle
//	├── core/               # Shared error kinds (not found, conflict, ...)
//	├── domain/             # Models and pure rules
//	│   ├── facility/       # Facilities and their messes
//	│   ├── user/           # Users, roles and request principals
//	│   ├── meal/           # Meal types and calendar dates
//	│   ├── menuitem/       # Dishes offered by a mess
//	│   ├── dailymenu/      # One mess, one date, one meal
//	│   ├── rating/         # Student ratings and votes
//	│   └── stats/          # Incremental rating aggregates
//	├── services/           # Business operations, one package per concern
//	├── storage/            # Store interfaces, optimistic retry
//	│   ├── memory/         # In-process implementation
//	│   ├── postgres/       # sqlx + lib/pq implementation
//	│   └── mongo/          # mongo-driver implementation
//	├── httpapi/            # REST routes, middleware, live feed
//	├── metrics/            # Prometheus collectors
//	├── system/             # Lifecycle manager
//	└── runtime/            # Config-driven process wiring and HTTP server
//
// # Dependency Direction
//
//	cmd/messhall
//	      │
//	      ▼
//	internal/app/runtime ──► internal/config
//	      │
//	      ├──► internal/app/httpapi
//	      │           │
//	      │           ▼
//	      └──► internal/app (composition)
//	                  │
//	                  ├──► internal/app/services/* ──► internal/app/domain/*
//	                  │
//	                  └──► internal/app/storage/*
//
// Services never import httpapi or runtime. Domain packages import nothing
// from the rest of the module except other domain packages and core.
//
// # Adding a Concern
//
//  1. Model it in internal/app/domain/<name>/
//  2. Add its store interface to internal/app/storage/interfaces.go
//  3. Implement the store in memory/, postgres/ and mongo/
//  4. Write the service in internal/app/services/<name>/
//  5. Wire it in application.go
//  6. Expose it from internal/app/httpapi/
package app
