// Package application_tools exposes the applytrack workflows as MCP tools so
// an assistant can send applications and sync the inbox for its user.
//
// Tools:
//   - applications_send: email the resume for one or more jobs through the
//     owner's linked Gmail account (write operation)
//   - inbox_sync: correlate recent mail with sent applications
//   - accounts_list: show the linked mailboxes
//
// The owner is never a tool argument. It comes from the authenticated HTTP
// transport or from the owner the stdio server was started for.
//
// Example:
//
//	applications_send(jobIds: ["job-1", "job-2"], resumeId: "resume-1")
package application_tools
