package mcpserver

// LinkFormatContract describes the shard and link-file conventions that LLM
// consumers should follow when writing into a vault.
const LinkFormatContract = `# Emerald Vault Format

A vault is a directory tree. Three kinds of files live in it.

## Shards

Files ending in ` + "`" + `.md` + "`" + ` are shards: Markdown documents that are parsed, indexed
and searchable.

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL - falls back to the first "# " heading
tags: [project-x, meeting-notes]   # OPTIONAL - merged with inline #tags
---

Body text in Markdown (GFM tables, task lists, $math$ and $$ blocks).

- [ ] an open task
  - [x] a finished subtask

Use [[wikilinks]] or [text](path/to/shard.md) to reference other shards.
` + "```" + `

Front matter may also be TOML between ` + "`" + `+++` + "`" + ` fences. It must start on the
very first line of the file.

## Link files

A file whose content starts with the marker ` + "`" + `@/>` + "`" + ` is a link. The rest of the
content is the target path:

` + "```" + `text
@/>projects/shared
` + "```" + `

Rules:

1. Relative targets are taken from the vault root; absolute targets are host paths.
2. Only the last segment of a path is redirected: ` + "`" + `/alias/note.md` + "`" + ` works when
   ` + "`" + `alias` + "`" + ` links to a directory, but directories nested inside that target
   are not reachable through it.
3. A link file never has the ` + "`" + `.md` + "`" + ` extension. A shard is always a shard.
4. Create links with the ` + "`" + `link` + "`" + ` command or ` + "`" + `POST /api/fs/link/{path}` + "`" + `.

## Other files

Everything else is a regular file. It is listed by walks and readable raw, but
never parsed.
`
