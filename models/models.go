package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// Database schema overview:
// 1. users - identified by display name; password only set when auth is enabled
// 2. decks - flashcard decks, unique name per user
// 3. cards - question/answer cards with Anki-style state and flag
// 4. chat_messages - persisted user/assistant conversation turns
// 5. srs_actions - log of flashcard mutations performed by the assistant
// 6. package_files - uploaded/exported .apkg files on disk
// 7. refresh_tokens - hashed refresh tokens for cookie auth
