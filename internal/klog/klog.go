// Package klog is the kernel's structured logging sink. Every trap/panic/
// task-kill message (§4.5, §7) and every EasyFS bitmap/inode corruption
// message goes through here with structured fields instead of bare
// fmt.Printf, the way biscuit's own packages log through the stdlib log
// package with a fixed prefix — logrus is the fields-and-levels upgrade
// the rest of the retrieved pack (gvisor, ffromani-dra-driver-memory) reaches
// for in its place.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

/// Log is the process-wide logger. Every kernel/EasyFS package logs
/// through this instance rather than constructing its own.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

/// SetLevel adjusts the global log level, wired to internal/config's
/// boot-time `log_level` setting.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Log.Warnf("klog: unknown log level %q, keeping %v", level, Log.GetLevel())
		return
	}
	Log.SetLevel(lvl)
}

/// TaskKilled logs a fatal-to-the-task trap cause (§4.5's "log; kill
/// current task" rows) with the task id and fault reason as structured
/// fields, not interpolated into the message string.
func TaskKilled(taskID int, cause string, detail string) {
	Log.WithFields(logrus.Fields{
		"task_id": taskID,
		"cause":   cause,
	}).Warn(detail)
}

/// TimerPreempt logs a timer-interrupt-forced reschedule (§4.5's
/// SupervisorTimer row: "program next tick; run_next()"). Debug level,
/// not Warn — unlike a task kill this is routine scheduling, not a fault.
func TimerPreempt(taskID int, cause string) {
	Log.WithFields(logrus.Fields{
		"task_id": taskID,
		"cause":   cause,
	}).Debug("trap: timer interrupt, rescheduling")
}

/// Corruption logs an unrecoverable on-disk inconsistency (§7: "invalid
/// inode-type byte on disk — panic") right before the caller panics, so
/// the structured fields survive even though the process is about to die.
func Corruption(block int, detail string) {
	Log.WithFields(logrus.Fields{
		"block": block,
	}).Error(detail)
}
