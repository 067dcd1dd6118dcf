// Package webhook provides ports.WebhookInvoker implementations.
//
// HTTPInvoker posts the request as JSON and parses the reply:
//
//	{
//	  "fulfillment_response": {"messages": [{"text": {"text": ["Done."]}}]},
//	  "session_info": {"parameters": {"order_id": "A-17", "coupon": null}},
//	  "page_info": {"form_info": {"parameter_info": [{"display_name": "size", "state": "INVALID"}]}},
//	  "target_page": "confirm",
//	  "payload": {"card": "receipt"}
//	}
//
// Registry dispatches to Go functions keyed by webhook id, and Mux routes between the two.
package webhook
