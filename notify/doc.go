// Package notify delivers one-time codes out of band.
//
// [Dispatcher] implements goCred.Notifier. It queues notifications on a
// bounded channel and a single worker renders and sends them, so the
// engine never waits on mail delivery. [Render] turns a notification into a
// [Message]; [SMTPSender] and [LogSender] deliver it.
package notify
