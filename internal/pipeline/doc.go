// Package pipeline provides the hook registry and the webhook hooks.
//
// Hooks are configured per phase and run in ascending order:
//   - Pre-request hooks run after variable substitution. A webhook hook
//     registers its call as a pending operation, so the request waits for
//     the webhook up to its timeout.
//   - Response hooks run after a successful response for requests that
//     declare response actions. The first hook that handles the actions
//     supplies the actions result.
//
// # Webhook Contract
//
// Webhooks receive a WebhookInput and must return a WebhookOutput:
//
//	POST <webhook_url>
//	Content-Type: application/json
//
//	{
//	  "phase": "request" | "response",
//	  "request": { ... request ... },
//	  "response": { ... response ... },     // only in response phase
//	  "actions": [ ... ],                  // only in response phase
//	  "metadata": { "request_id": "...", "hook": "..." }
//	}
//
// Response:
//
//	{
//	  "action": "allow" | "deny" | "mutate",
//	  "request": { "url": "...", "method": "...", "headers": "...", "payload": "..." },
//	  "deny_reason": "...",                // if denying
//	  "handled": true,                     // response phase only
//	  "result": { ... }                    // response phase only
//	}
package pipeline
