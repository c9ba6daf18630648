package web

import "embed"

// Assets bundles the static control panel so the server binary
// ships as a single file.
//
//go:embed index.html styles.css app.js
var Assets embed.FS
