// Package logx is remindbot's logging front end over zerolog.
//
// A Service owns the sinks (console, JSON file, Telegram log chat) and can be
// re-applied on config reload; Loggers handed out before a reload follow the
// new sinks.
package logx
