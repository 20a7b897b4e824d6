// Package ui implements the flowwatch terminal dashboard using Bubble Tea.
//
// The dashboard polls the coordinator's snapshot every tick, evaluates the
// entity registry against it and shows one device per row: the server first,
// then nodes, then active runners. The panel on the right lists the selected
// device's entities with their current values.
//
// Key bindings:
//
//	j/k, g/G   select device
//	space      enable or disable the selected node
//	p / u      pause / resume processing
//	r          refresh now
//	l          toggle the flowwatch log view
//	T          cycle theme (saved to the entry file)
//	?          help
//	q, ctrl+c  quit
//
// Themes are Nightfox, Kanagawa and Gruvbox.
package ui
