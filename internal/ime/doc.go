// Package ime binds an editing widget to the input method session.
//
// # Architecture Overview
//
// The compositor lends the input method role to one client at a time. The
// role is held by a session; the widget asks for it through an InputMethod
// and, when it wants raw keys, grabs the keyboard through a Keyboard:
//
//	┌────────────┐  activate/done   ┌──────────────┐
//	│ compositor │─────────────────→│   Session    │──→ Activated/Deactivated
//	│            │←─────────────────│              │
//	└─────┬──────┘  commit_string   └──────┬───────┘
//	      │         set_preedit            │ GrabKeyboard
//	      │         commit(serial)         ↓
//	      │  key/modifiers/keymap   ┌──────────────┐     ┌──────────────┐
//	      └────────────────────────→│     Grab     │────→│   Keyboard   │──→ widget
//	                                └──────┬───────┘     └──────────────┘
//	                                       │ unconsumed keys
//	                                       ↓
//	                                ┌──────────────┐
//	                                │ virtual kbd  │──→ compositor
//	                                └──────────────┘
//
// # Keyboard Events
//
// A grabbed keyboard reports:
//
//	┌──────────────────┬──────────────────────────────────────────┐
//	│ Event            │ Sent when                                │
//	├──────────────────┼──────────────────────────────────────────┤
//	│ CharacterPressed │ a key producing a printable character    │
//	│ EscapePressed    │ Escape; always releases the keyboard     │
//	│ ReturnPressed    │ Return                                   │
//	│ DirectionPressed │ an arrow key                             │
//	│ BackspacePressed │ BackSpace                                │
//	│ DeletePressed    │ Delete                                   │
//	└──────────────────┴──────────────────────────────────────────┘
//
// Everything else, modifiers included, goes back to the compositor through
// the virtual keyboard, so shortcuts keep working while the keyboard is
// grabbed.
//
// # Threading
//
// None of the types in this package are safe for concurrent use. They are
// driven from the dispatch loop, as are the session and the grab.
package ime
