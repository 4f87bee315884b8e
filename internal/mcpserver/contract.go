package mcpserver

// DocumentFormat describes the document model that LLM consumers see
// through the document tools.
const DocumentFormat = `# Contextpad Document Format

A contextpad document is plain text with a title and a curated set of
reference links. The editor saves it automatically shortly after the last
edit; ` + "`" + `save_document` + "`" + ` forces a save.

## Fields

- **id**: ` + "`" + `localdoc` + "`" + ` for the anonymous local draft, a ` + "`" + `pending-...` + "`" + ` placeholder while
  the backend allocates an id, or the backend id.
- **title**: free text, may be empty.
- **text**: the body. Plain text; URLs in the body are not links until attached.
- **cursor**: caret offset in characters.
- **hidecontext**: whether the link panel is hidden.
- **links**: three lists.
  - ` + "`" + `sticky` + "`" + ` (pinned): links the author kept. Never replaced by analysis.
  - ` + "`" + `normal` + "`" + ` (discovered): links suggested by analysis of the text. Replaced after each save.
  - ` + "`" + `blacklist` + "`" + ` (rejected): URLs the author dismissed. They never come back for this document.

## Link curation

1. ` + "`" + `pin_link` + "`" + ` moves a discovered link to sticky.
2. ` + "`" + `unpin_link` + "`" + ` moves a sticky link to the front of discovered.
3. ` + "`" + `reject_link` + "`" + ` dismisses a discovered link.
4. ` + "`" + `attach_links` + "`" + ` pins every URL found in the given text. Titles are
   fetched in the background; until then the link reads "Verifying...".

## Limits

- Anonymous users keep one local document. Creating a second one reports
  ` + "`" + `upgrade_required` + "`" + `.
- Free users keep a limited number of active documents.
`
